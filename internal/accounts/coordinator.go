package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.accounts")

var (
	ErrMissingUserID = errors.New("accounts: missing user id")
	ErrSelfDeletion  = errors.New("accounts: admins cannot delete themselves")

	// ErrNoIdentityStore fails the identity phase so a profile is never removed while its
	// sign-in identity may survive.
	ErrNoIdentityStore = errors.New("accounts: identity store not configured")
)

// Phase names a step of user deletion.
type Phase string

const (
	PhaseDependents Phase = "dependents"
	PhaseIdentity   Phase = "identity"
	PhaseProfile    Phase = "profile"
)

// PhaseError reports which deletion phase failed. Phases before it stay committed.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message(), e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Message is the caller-facing description of the failed phase.
func (e *PhaseError) Message() string {
	switch e.Phase {
	case PhaseDependents:
		return "dependent data deletion failed"
	case PhaseIdentity:
		return "identity deletion failed"
	case PhaseProfile:
		return "profile deletion failed"
	}
	return "user deletion failed"
}

// DependentDeleter removes the rows of one reference that point at uid.
type DependentDeleter interface {
	DeleteReferencing(ctx context.Context, ref Reference, uid string) (int64, error)
}

// BlobCleaner removes stored objects under a prefix.
type BlobCleaner interface {
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// IdentityStore removes sign-in identities. absent reports an identity that was already gone.
type IdentityStore interface {
	DeleteIdentity(ctx context.Context, uid string) (absent bool, err error)
}

// ProfileStore removes profile records. deleted is false when no row existed.
type ProfileStore interface {
	Delete(ctx context.Context, uid string) (deleted bool, err error)
}

// Result summarizes a completed deletion.
type Result struct {
	UserID                string           `json:"user_id"`
	Deleted               map[string]int64 `json:"deleted"`
	BlobsDeleted          int              `json:"blobs_deleted"`
	IdentityAlreadyAbsent bool             `json:"identity_already_absent"`
	ProfileAlreadyAbsent  bool             `json:"profile_already_absent"`
	Warnings              []string         `json:"warnings,omitempty"`
}

// CoordinatorConfig wires the coordinator. Blobs is optional. Without Identity every
// deletion stops at the identity phase.
type CoordinatorConfig struct {
	Dependents DependentDeleter
	Blobs      BlobCleaner
	Identity   IdentityStore
	Profiles   ProfileStore
	References []Reference
	Metrics    *metrics.CascadeMetrics
	Logger     *logging.Logger
}

// Coordinator deletes a user and everything that references it, in order: dependent
// rows, blobs (best effort), identity, profile.
type Coordinator struct {
	dependents DependentDeleter
	blobs      BlobCleaner
	identity   IdentityStore
	profiles   ProfileStore
	refs       []Reference
	metrics    *metrics.CascadeMetrics
	logger     *logging.Logger
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Dependents == nil || cfg.Profiles == nil {
		panic("accounts: dependents and profiles are required")
	}
	if cfg.References == nil {
		cfg.References = References
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Coordinator{
		dependents: cfg.Dependents,
		blobs:      cfg.Blobs,
		identity:   cfg.Identity,
		profiles:   cfg.Profiles,
		refs:       cfg.References,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.Component("accounts"),
	}
}

// DeleteUser removes targetID on behalf of actorID. Running it again for an id that is
// already gone succeeds without changes.
func (c *Coordinator) DeleteUser(ctx context.Context, actorID, targetID string) (*Result, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return nil, ErrMissingUserID
	}
	if targetID == strings.TrimSpace(actorID) {
		return nil, ErrSelfDeletion
	}

	ctx, span := tracer.Start(ctx, "accounts.delete_user", trace.WithAttributes(attribute.String("clinic.user_id", targetID)))
	defer span.End()

	res := &Result{UserID: targetID, Deleted: make(map[string]int64, len(c.refs))}

	deleted, err := c.deleteDependents(ctx, targetID)
	c.metrics.ObservePhase(string(PhaseDependents), err)
	if err != nil {
		span.RecordError(err)
		c.logger.Error("dependent deletion failed", "user_id", targetID, "error", err)
		return nil, &PhaseError{Phase: PhaseDependents, Err: err}
	}
	for i, ref := range c.refs {
		res.Deleted[ref.Collection] = deleted[i]
		c.metrics.ObserveDeleted(ref.Collection, deleted[i])
	}

	if c.blobs != nil {
		n, err := c.blobs.DeletePrefix(ctx, BlobPrefix(targetID))
		res.BlobsDeleted = n
		if err != nil {
			c.logger.Warn("blob cleanup failed", "user_id", targetID, "error", err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("blob cleanup incomplete: %v", err))
		}
	}

	absent, err := c.deleteIdentity(ctx, targetID)
	c.metrics.ObservePhase(string(PhaseIdentity), err)
	if err != nil {
		span.RecordError(err)
		c.logger.Error("identity deletion failed", "user_id", targetID, "error", err)
		return nil, &PhaseError{Phase: PhaseIdentity, Err: err}
	}
	res.IdentityAlreadyAbsent = absent

	removed, err := c.profiles.Delete(ctx, targetID)
	c.metrics.ObservePhase(string(PhaseProfile), err)
	if err != nil {
		span.RecordError(err)
		c.logger.Error("profile deletion failed", "user_id", targetID, "error", err)
		return nil, &PhaseError{Phase: PhaseProfile, Err: err}
	}
	res.ProfileAlreadyAbsent = !removed

	c.logger.Info("user deleted", "user_id", targetID, "actor_id", actorID, "deleted", res.Deleted, "blobs", res.BlobsDeleted)
	return res, nil
}

// deleteDependents purges every reference concurrently. Counts are indexed like c.refs.
func (c *Coordinator) deleteDependents(ctx context.Context, uid string) ([]int64, error) {
	ctx, span := tracer.Start(ctx, "accounts.delete_dependents")
	defer span.End()

	counts := make([]int64, len(c.refs))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range c.refs {
		g.Go(func() error {
			n, err := c.dependents.DeleteReferencing(gctx, ref, uid)
			counts[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (c *Coordinator) deleteIdentity(ctx context.Context, uid string) (bool, error) {
	if c.identity == nil {
		return false, ErrNoIdentityStore
	}
	ctx, span := tracer.Start(ctx, "accounts.delete_identity")
	defer span.End()
	return c.identity.DeleteIdentity(ctx, uid)
}
