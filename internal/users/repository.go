package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists user profiles in the users table.
type Repository struct {
	db db
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("users: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithDB allows injecting a mock database for tests.
func NewRepositoryWithDB(db db) *Repository {
	return &Repository{db: db}
}

const profileColumns = `uid, role, email, name, COALESCE(phone, ''), COALESCE(photo_url, ''), created_at`

// Get loads a profile by uid.
func (r *Repository) Get(ctx context.Context, uid string) (*Profile, error) {
	return r.queryOne(ctx, `SELECT `+profileColumns+` FROM users WHERE uid = $1`, uid)
}

// FindByEmail returns the profile whose email matches exactly.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*Profile, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrNotFound
	}
	return r.queryOne(ctx, `SELECT `+profileColumns+` FROM users WHERE email = $1 LIMIT 1`, email)
}

// FirstByRole returns the oldest profile holding role.
func (r *Repository) FirstByRole(ctx context.Context, role Role) (*Profile, error) {
	return r.queryOne(ctx, `SELECT `+profileColumns+` FROM users WHERE role = $1 ORDER BY created_at ASC LIMIT 1`, string(role))
}

// Delete removes the profile row. A profile that is already gone is not an error;
// the returned bool reports whether a row was actually removed.
func (r *Repository) Delete(ctx context.Context, uid string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE uid = $1`, uid)
	if err != nil {
		return false, fmt.Errorf("users: delete %s: %w", uid, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) queryOne(ctx context.Context, query string, args ...any) (*Profile, error) {
	var p Profile
	var role string
	err := r.db.QueryRow(ctx, query, args...).Scan(&p.UID, &role, &p.Email, &p.Name, &p.Phone, &p.PhotoURL, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("users: query profile: %w", err)
	}
	p.Role = Role(role)
	return &p, nil
}
