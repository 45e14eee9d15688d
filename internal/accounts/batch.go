package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxBatchSize is the most rows removed per committed batch.
const MaxBatchSize = 500

type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// BatchDeleter removes rows referencing a user in bounded, individually committed batches.
// An interrupted run leaves earlier batches deleted; running it again finishes the job.
type BatchDeleter struct {
	db        db
	batchSize int
}

// NewBatchDeleter creates a deleter over a pgx pool. batchSize is clamped to MaxBatchSize.
func NewBatchDeleter(pool *pgxpool.Pool, batchSize int) *BatchDeleter {
	if pool == nil {
		panic("accounts: pgx pool required")
	}
	return newBatchDeleterWithDB(pool, batchSize)
}

func newBatchDeleterWithDB(db db, batchSize int) *BatchDeleter {
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	return &BatchDeleter{db: db, batchSize: batchSize}
}

// DeleteReferencing deletes every row of ref.Collection where any of ref.Fields equals uid
// and returns how many were removed.
func (d *BatchDeleter) DeleteReferencing(ctx context.Context, ref Reference, uid string) (int64, error) {
	selectSQL, deleteSQL, err := batchStatements(ref)
	if err != nil {
		return 0, err
	}

	var total int64
	for {
		n, err := d.deleteBatch(ctx, selectSQL, deleteSQL, uid)
		if err != nil {
			return total, fmt.Errorf("accounts: delete from %s: %w", ref.Collection, err)
		}
		total += n
		if n < int64(d.batchSize) {
			return total, nil
		}
	}
}

func (d *BatchDeleter) deleteBatch(ctx context.Context, selectSQL, deleteSQL, uid string) (int64, error) {
	tx, err := d.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, selectSQL, uid, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("select ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, fmt.Errorf("scan ids: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	n, err := execRowsAffected(ctx, tx, deleteSQL, ids)
	if err != nil {
		return 0, fmt.Errorf("delete batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return n, nil
}

func batchStatements(ref Reference) (selectSQL, deleteSQL string, err error) {
	if ref.Collection == "" || len(ref.Fields) == 0 {
		return "", "", fmt.Errorf("accounts: reference needs a collection and at least one field")
	}
	table := pgx.Identifier{ref.Collection}.Sanitize()
	conds := make([]string, len(ref.Fields))
	for i, f := range ref.Fields {
		conds[i] = pgx.Identifier{f}.Sanitize() + " = $1"
	}
	selectSQL = fmt.Sprintf("SELECT id FROM %s WHERE %s LIMIT $2 FOR UPDATE", table, strings.Join(conds, " OR "))
	deleteSQL = fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", table)
	return selectSQL, deleteSQL, nil
}

func execRowsAffected(ctx context.Context, tx pgx.Tx, query string, args ...any) (int64, error) {
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
