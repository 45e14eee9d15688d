package booking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.booking")

// Provider labels deliveries in the processed ledger.
const Provider = "scheduling"

// ErrInvalidSignature is returned when the body signature does not verify.
var ErrInvalidSignature = errors.New("booking: invalid webhook signature")

// Outcome statuses reported back to the provider.
const (
	StatusCreated          = "created"
	StatusCancelled        = "cancelled"
	StatusNoMatch          = "no_matching_appointment"
	StatusIgnored          = "ignored"
	StatusAlreadyProcessed = "already_processed"
	StatusInProgress       = "in_progress"
)

// Result describes what a delivery did.
type Result struct {
	Status        string  `json:"status"`
	Trigger       Trigger `json:"trigger,omitempty"`
	AppointmentID string  `json:"appointment_id,omitempty"`
}

// Appointments is the state machine surface driven by webhooks.
type Appointments interface {
	Book(ctx context.Context, appt *appointments.Appointment, source appointments.Source) (*appointments.Appointment, error)
	CancelMatching(ctx context.Context, email string, startAt time.Time) (*appointments.Appointment, error)
}

// Ledger remembers fully handled deliveries.
type Ledger interface {
	AlreadyProcessed(ctx context.Context, provider, key string) (bool, error)
	MarkProcessed(ctx context.Context, provider, key, trigger string) (bool, error)
}

// Guard serializes concurrent deliveries of the same key.
type Guard interface {
	Acquire(ctx context.Context, key string) (bool, func(), error)
}

// ProcessorConfig wires optional collaborators.
type ProcessorConfig struct {
	Ledger  Ledger
	Guard   Guard
	Metrics *metrics.WebhookMetrics
	Logger  *logging.Logger
}

// Processor runs a delivery through verification, normalization and the state machine.
type Processor struct {
	verifier     *Verifier
	normalizer   *Normalizer
	appointments Appointments
	ledger       Ledger
	guard        Guard
	metrics      *metrics.WebhookMetrics
	logger       *logging.Logger
}

func NewProcessor(verifier *Verifier, normalizer *Normalizer, appts Appointments, cfg ProcessorConfig) *Processor {
	if verifier == nil || normalizer == nil || appts == nil {
		panic("booking: verifier, normalizer and appointments are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Processor{
		verifier:     verifier,
		normalizer:   normalizer,
		appointments: appts,
		ledger:       cfg.Ledger,
		guard:        cfg.Guard,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.Component("booking"),
	}
}

// Handle processes one delivery. body must be the exact bytes received.
// Validation failures wrap ErrInvalidSignature, ErrMalformedPayload,
// ErrMissingAttendeeEmail, ErrMissingStartTime or ErrInvalidStartTime.
func (p *Processor) Handle(ctx context.Context, body []byte, signature string) (Result, error) {
	ctx, span := tracer.Start(ctx, "booking.handle")
	defer span.End()
	started := time.Now()

	if !p.verifier.Verify(body, signature) {
		p.metrics.ObserveDelivery("unknown", "unauthorized")
		return Result{}, ErrInvalidSignature
	}
	evt, err := ParseEvent(body)
	if err != nil {
		p.metrics.ObserveDelivery("unknown", "invalid")
		return Result{}, err
	}
	trigger := string(evt.TriggerEvent)
	span.SetAttributes(attribute.String("clinic.trigger", trigger))
	defer func() { p.metrics.ObserveLatency(trigger, time.Since(started).Seconds()) }()

	if !handled(evt.TriggerEvent) {
		p.logger.Info("webhook trigger ignored", "trigger", trigger)
		p.metrics.ObserveDelivery(trigger, StatusIgnored)
		return Result{Status: StatusIgnored, Trigger: evt.TriggerEvent}, nil
	}

	key := DeliveryKey(evt, body)
	if seen, err := p.alreadyProcessed(ctx, key); err != nil || seen {
		return p.replayResult(span, evt, err)
	}
	if p.guard != nil {
		ok, release, err := p.guard.Acquire(ctx, key)
		if err != nil {
			p.logger.Warn("delivery guard unavailable, continuing unguarded", "key", key, "error", err)
		} else if !ok {
			p.metrics.ObserveDelivery(trigger, StatusInProgress)
			return Result{Status: StatusInProgress, Trigger: evt.TriggerEvent}, nil
		}
		if release != nil {
			defer release()
		}
		// A concurrent delivery may have finished between the first read and the lock.
		if seen, err := p.alreadyProcessed(ctx, key); err != nil || seen {
			return p.replayResult(span, evt, err)
		}
	}

	res, err := p.dispatch(ctx, evt)
	if err != nil {
		span.RecordError(err)
		p.metrics.ObserveDelivery(trigger, outcomeFor(err))
		return Result{}, err
	}
	p.metrics.ObserveDelivery(trigger, res.Status)

	if p.ledger != nil {
		if _, err := p.ledger.MarkProcessed(ctx, Provider, key, trigger); err != nil {
			p.logger.Warn("failed to record processed webhook", "key", key, "error", err)
		}
	}
	return res, nil
}

func (p *Processor) alreadyProcessed(ctx context.Context, key string) (bool, error) {
	if p.ledger == nil {
		return false, nil
	}
	return p.ledger.AlreadyProcessed(ctx, Provider, key)
}

// replayResult reports a ledger hit, or the ledger error when err is set.
func (p *Processor) replayResult(span trace.Span, evt *Event, err error) (Result, error) {
	trigger := string(evt.TriggerEvent)
	if err != nil {
		span.RecordError(err)
		p.metrics.ObserveDelivery(trigger, "error")
		return Result{}, err
	}
	p.metrics.ObserveDelivery(trigger, StatusAlreadyProcessed)
	return Result{Status: StatusAlreadyProcessed, Trigger: evt.TriggerEvent}, nil
}

func (p *Processor) dispatch(ctx context.Context, evt *Event) (Result, error) {
	res := Result{Trigger: evt.TriggerEvent}
	switch evt.TriggerEvent {
	case TriggerBookingCreated:
		appt, err := p.normalizer.Booking(ctx, evt.Payload)
		if err != nil {
			return res, err
		}
		booked, err := p.appointments.Book(ctx, appt, appointments.SourceWebhook)
		if err != nil {
			return res, fmt.Errorf("booking: create appointment: %w", err)
		}
		res.Status, res.AppointmentID = StatusCreated, booked.ID
	case TriggerBookingCancelled:
		c, err := p.normalizer.Cancellation(evt.Payload)
		if err != nil {
			return res, err
		}
		cancelled, err := p.appointments.CancelMatching(ctx, c.Email, c.StartAt)
		if err != nil {
			return res, fmt.Errorf("booking: cancel appointment: %w", err)
		}
		if cancelled == nil {
			res.Status = StatusNoMatch
			return res, nil
		}
		res.Status, res.AppointmentID = StatusCancelled, cancelled.ID
	default:
		// Acknowledged but not acted on, e.g. reschedules.
		res.Status = StatusIgnored
	}
	return res, nil
}

func handled(t Trigger) bool {
	switch t {
	case TriggerBookingCreated, TriggerBookingCancelled, TriggerBookingRescheduled:
		return true
	}
	return false
}

// DeliveryKey identifies a delivery for idempotency: the booking uid with the trigger,
// or the body digest when the payload has no uid.
func DeliveryKey(evt *Event, body []byte) string {
	if uid := strings.TrimSpace(evt.Payload.UID); uid != "" {
		return uid + ":" + string(evt.TriggerEvent)
	}
	sum := sha256.Sum256(body)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// IsValidation reports whether err is a client-side payload problem.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrMissingAttendeeEmail) ||
		errors.Is(err, ErrMissingStartTime) ||
		errors.Is(err, ErrInvalidStartTime)
}

func outcomeFor(err error) string {
	if IsValidation(err) {
		return "invalid"
	}
	return "error"
}
