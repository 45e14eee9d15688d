package booking

import (
	"context"
	"errors"
	"strings"

	"github.com/wolfman30/clinic-booking/internal/users"
)

// ProfessionalResolver picks the professional a booking belongs to.
type ProfessionalResolver interface {
	ResolveProfessional(ctx context.Context, p Payload) (*users.Profile, error)
}

// ProfileDirectory is the user lookup surface used while normalizing events.
type ProfileDirectory interface {
	Get(ctx context.Context, uid string) (*users.Profile, error)
	FindByEmail(ctx context.Context, email string) (*users.Profile, error)
	FirstByRole(ctx context.Context, role users.Role) (*users.Profile, error)
}

// FirstProfessional assumes a single active professional and returns the oldest one.
type FirstProfessional struct {
	Directory ProfileDirectory
}

func (r FirstProfessional) ResolveProfessional(ctx context.Context, _ Payload) (*users.Profile, error) {
	return r.Directory.FirstByRole(ctx, users.RoleProfessional)
}

// EventTypeRouting maps event-type slugs to professional uids. Unrouted slugs go to
// Fallback when set.
type EventTypeRouting struct {
	Directory ProfileDirectory
	Routes    map[string]string
	Fallback  ProfessionalResolver
}

func (r EventTypeRouting) ResolveProfessional(ctx context.Context, p Payload) (*users.Profile, error) {
	if uid, ok := r.Routes[strings.TrimSpace(p.Slug())]; ok {
		prof, err := r.Directory.Get(ctx, uid)
		if err == nil {
			return prof, nil
		}
		if !errors.Is(err, users.ErrNotFound) || r.Fallback == nil {
			return nil, err
		}
	}
	if r.Fallback != nil {
		return r.Fallback.ResolveProfessional(ctx, p)
	}
	return nil, users.ErrNotFound
}
