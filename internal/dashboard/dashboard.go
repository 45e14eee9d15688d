// Package dashboard aggregates read-only clinic figures for the admin overview.
package dashboard

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Summary is the admin overview.
type Summary struct {
	Services     []string       `json:"services,omitempty"`
	ByStatus     map[string]int `json:"by_status"`
	Total        int            `json:"total"`
	Upcoming     int            `json:"upcoming"`
	NextWeek     int            `json:"next_week"`
	RevenueCents int64          `json:"revenue_cents"`
	UsersByRole  map[string]int `json:"users_by_role"`
	GeneratedAt  time.Time      `json:"generated_at"`
}

// Aggregator runs the dashboard queries.
type Aggregator struct {
	db  *sql.DB
	now func() time.Time
}

func NewAggregator(db *sql.DB) *Aggregator {
	return &Aggregator{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const serviceFilter = `($1::text[] IS NULL OR service_slug = ANY($1))`

// Summarize computes the overview. services optionally restricts appointment figures to
// those service slugs.
func (a *Aggregator) Summarize(ctx context.Context, services []string) (*Summary, error) {
	if a == nil || a.db == nil {
		return nil, fmt.Errorf("dashboard: database not configured")
	}
	services = cleanSlugs(services)
	var filter any = pq.Array(services)
	if len(services) == 0 {
		filter = nil
	}

	now := a.now()
	s := &Summary{
		Services:    services,
		ByStatus:    map[string]int{"confirmed": 0, "completed": 0, "cancelled": 0},
		UsersByRole: map[string]int{},
		GeneratedAt: now,
	}

	if err := a.countBy(ctx, s.ByStatus,
		`SELECT status, COUNT(*) FROM appointments WHERE `+serviceFilter+` GROUP BY status`, filter); err != nil {
		return nil, fmt.Errorf("dashboard: status counts: %w", err)
	}
	for _, n := range s.ByStatus {
		s.Total += n
	}

	if err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM appointments WHERE `+serviceFilter+` AND status = 'confirmed' AND scheduled_at > $2`,
		filter, now,
	).Scan(&s.Upcoming); err != nil {
		return nil, fmt.Errorf("dashboard: upcoming: %w", err)
	}

	if err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM appointments WHERE `+serviceFilter+` AND status = 'confirmed' AND scheduled_at > $2 AND scheduled_at <= $3`,
		filter, now, now.Add(7*24*time.Hour),
	).Scan(&s.NextWeek); err != nil {
		return nil, fmt.Errorf("dashboard: next week: %w", err)
	}

	if err := a.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(s.price_cents), 0)
		FROM appointments a
		JOIN services s ON s.slug = a.service_slug
		WHERE a.status = 'completed' AND ($1::text[] IS NULL OR a.service_slug = ANY($1))`,
		filter,
	).Scan(&s.RevenueCents); err != nil {
		return nil, fmt.Errorf("dashboard: revenue: %w", err)
	}

	if err := a.countBy(ctx, s.UsersByRole, `SELECT role, COUNT(*) FROM users GROUP BY role`); err != nil {
		return nil, fmt.Errorf("dashboard: users by role: %w", err)
	}
	return s, nil
}

func (a *Aggregator) countBy(ctx context.Context, into map[string]int, query string, args ...any) error {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}

func cleanSlugs(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, raw := range in {
		for _, part := range strings.Split(raw, ",") {
			slug := strings.TrimSpace(part)
			if slug == "" || seen[slug] {
				continue
			}
			seen[slug] = true
			out = append(out, slug)
		}
	}
	return out
}
