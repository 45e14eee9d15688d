package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.appointments")

// DefaultCancellationNotice is the minimum lead time for patient self-cancellation.
const DefaultCancellationNotice = 24 * time.Hour

// MatchTolerance is the window around an external start time used to find the
// appointment a provider cancellation refers to.
const MatchTolerance = 60 * time.Second

// Store is the persistence surface the state machine needs.
type Store interface {
	Create(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id string) (*Appointment, error)
	FindConfirmedByEmailNear(ctx context.Context, email string, at time.Time, tolerance time.Duration) (*Appointment, error)
	TransitionStatus(ctx context.Context, id string, from, to Status) (*Appointment, error)
	CompleteWithNote(ctx context.Context, id string, note *ClinicalNote) (*Appointment, error)
	ListForPatient(ctx context.Context, patientID string, limit int) ([]Appointment, error)
}

// Notifier delivers best-effort messages after a transition has been committed.
// Implementations own their error handling; the state machine never waits on the outcome
// to decide success.
type Notifier interface {
	AppointmentConfirmed(ctx context.Context, appt *Appointment)
	AppointmentCancelled(ctx context.Context, appt *Appointment)
}

// ServiceConfig wires optional collaborators.
type ServiceConfig struct {
	Notifier           Notifier
	Metrics            *metrics.AppointmentMetrics
	CancellationNotice time.Duration
	Now                func() time.Time
	Logger             *logging.Logger
}

// Service enforces the appointment status machine.
type Service struct {
	store    Store
	notifier Notifier
	metrics  *metrics.AppointmentMetrics
	notice   time.Duration
	now      func() time.Time
	logger   *logging.Logger
}

// NewService constructs the state machine service.
func NewService(store Store, cfg ServiceConfig) *Service {
	if store == nil {
		panic("appointments: store required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.CancellationNotice <= 0 {
		cfg.CancellationNotice = DefaultCancellationNotice
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:    store,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		notice:   cfg.CancellationNotice,
		now:      cfg.Now,
		logger:   cfg.Logger.Component("appointments"),
	}
}

// Book persists a new confirmed appointment and then sends confirmations.
func (s *Service) Book(ctx context.Context, appt *Appointment, source Source) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.book")
	defer span.End()

	if err := validateNew(appt); err != nil {
		return nil, err
	}
	appt.Status = StatusConfirmed
	if err := s.store.Create(ctx, appt); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("clinic.appointment_id", appt.ID), attribute.String("clinic.source", string(source)))
	s.metrics.ObserveTransition("", string(StatusConfirmed), string(source))
	s.logger.Info("appointment confirmed", "appointment_id", appt.ID, "patient_id", appt.PatientID, "source", source)

	if s.notifier != nil {
		s.notifier.AppointmentConfirmed(ctx, appt)
	}
	return appt, nil
}

// Complete marks a confirmed appointment completed, optionally attaching a clinical note.
// An empty professionalID skips the ownership check (internal callers).
func (s *Service) Complete(ctx context.Context, id, professionalID string, note *NoteInput) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.complete", trace.WithAttributes(attribute.String("clinic.appointment_id", id)))
	defer span.End()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if professionalID != "" && current.ProfessionalID != "" && current.ProfessionalID != professionalID {
		return nil, ErrForbidden
	}
	if !CanTransition(current.Status, StatusCompleted) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, StatusCompleted)
	}

	var clinical *ClinicalNote
	if !note.Empty() {
		clinical = &ClinicalNote{
			Mood:          strings.TrimSpace(note.Mood),
			Participation: strings.TrimSpace(note.Participation),
			AreasWorked:   cleanAreas(note.AreasWorked),
			Text:          strings.TrimSpace(note.Text),
		}
	}

	appt, err := s.store.CompleteWithNote(ctx, id, clinical)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.metrics.ObserveTransition(string(StatusConfirmed), string(StatusCompleted), string(SourceProfessional))
	s.logger.Info("appointment completed", "appointment_id", id, "with_note", clinical != nil)
	return appt, nil
}

// CancelByPatient cancels on behalf of the owning patient. The scheduled instant must be
// at least the configured notice away, measured with the server clock.
func (s *Service) CancelByPatient(ctx context.Context, id, patientID string) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.cancel_by_patient", trace.WithAttributes(attribute.String("clinic.appointment_id", id)))
	defer span.End()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.PatientID != patientID {
		return nil, ErrForbidden
	}
	if !CanTransition(current.Status, StatusCancelled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, StatusCancelled)
	}
	if !s.withinCancellationWindow(current.ScheduledAt) {
		return nil, ErrCancellationWindow
	}

	return s.cancel(ctx, current, SourcePatient)
}

// CancelMatching cancels the confirmed appointment for email scheduled within
// MatchTolerance of startAt, ignoring any time guard. When nothing matches, or the
// appointment was cancelled concurrently, it returns (nil, nil): cancellations are
// idempotent so provider redeliveries succeed.
func (s *Service) CancelMatching(ctx context.Context, email string, startAt time.Time) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.cancel_matching")
	defer span.End()

	current, err := s.store.FindConfirmedByEmailNear(ctx, email, startAt, MatchTolerance)
	if errors.Is(err, ErrNotFound) {
		s.logger.Info("no confirmed appointment matches cancellation", "email", email, "start", startAt.UTC())
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	appt, err := s.cancel(ctx, current, SourceWebhook)
	if errors.Is(err, ErrInvalidTransition) {
		s.logger.Info("appointment already left confirmed before cancellation applied", "appointment_id", current.ID)
		return nil, nil
	}
	return appt, err
}

// ListForPatient returns the patient's appointments, newest first.
func (s *Service) ListForPatient(ctx context.Context, patientID string, limit int) ([]Appointment, error) {
	if patientID == "" {
		return nil, fmt.Errorf("%w: missing patient", ErrInvalid)
	}
	return s.store.ListForPatient(ctx, patientID, limit)
}

// CanPatientCancel reports whether the patient self-service guard would currently pass.
func (s *Service) CanPatientCancel(appt *Appointment) bool {
	return appt.Status == StatusConfirmed && s.withinCancellationWindow(appt.ScheduledAt)
}

func (s *Service) cancel(ctx context.Context, current *Appointment, source Source) (*Appointment, error) {
	appt, err := s.store.TransitionStatus(ctx, current.ID, current.Status, StatusCancelled)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(string(current.Status), string(StatusCancelled), string(source))
	s.logger.Info("appointment cancelled", "appointment_id", appt.ID, "source", source)

	if s.notifier != nil {
		s.notifier.AppointmentCancelled(ctx, appt)
	}
	return appt, nil
}

func (s *Service) withinCancellationWindow(scheduledAt time.Time) bool {
	return scheduledAt.Sub(s.now()) >= s.notice
}

// cleanAreas trims entries and drops blanks. The result is never nil because
// areas_worked is a NOT NULL array.
func cleanAreas(in []string) []string {
	out := make([]string, 0, len(in))
	for _, area := range in {
		if area = strings.TrimSpace(area); area != "" {
			out = append(out, area)
		}
	}
	return out
}

func validateNew(a *Appointment) error {
	if a == nil {
		return fmt.Errorf("%w: missing appointment", ErrInvalid)
	}
	a.PatientEmail = strings.TrimSpace(a.PatientEmail)
	if a.PatientID == "" {
		return fmt.Errorf("%w: missing patient", ErrInvalid)
	}
	if a.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: missing scheduled time", ErrInvalid)
	}
	if a.Status != "" && a.Status != StatusConfirmed {
		return fmt.Errorf("%w: new appointments start confirmed, got %s", ErrInvalid, a.Status)
	}
	return nil
}
