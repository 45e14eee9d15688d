package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore is the ledger of webhook deliveries that were fully handled.
type ProcessedStore struct {
	db rowQuerier
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{db: pool}
}

func newProcessedStoreWithExec(exec rowQuerier) *ProcessedStore {
	if exec == nil {
		panic("events: exec required")
	}
	return &ProcessedStore{db: exec}
}

// AlreadyProcessed reports whether the delivery key was recorded for provider.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, provider, key string) (bool, error) {
	var exists int
	err := s.db.QueryRow(ctx, `SELECT 1 FROM processed_webhooks WHERE provider = $1 AND event_key = $2`, provider, key).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed records the key with the trigger that produced it. It returns false when
// the key was already present.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, key, trigger string) (bool, error) {
	ct, err := s.db.Exec(ctx, `
		INSERT INTO processed_webhooks (provider, event_key, trigger_event)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, provider, key, trigger)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// Prune drops ledger rows recorded before cutoff and returns how many went.
func (s *ProcessedStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := s.db.Exec(ctx, `DELETE FROM processed_webhooks WHERE processed_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("events: prune processed: %w", err)
	}
	return ct.RowsAffected(), nil
}
