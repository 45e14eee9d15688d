// Package migrations embeds the schema migrations applied by cmd/migrate.
package migrations

import "embed"

// FS holds the up/down SQL files.
//
//go:embed *.sql
var FS embed.FS
