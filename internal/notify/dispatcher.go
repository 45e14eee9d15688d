package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/users"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// ContactLookup resolves profile contact details by uid.
type ContactLookup interface {
	Get(ctx context.Context, uid string) (*users.Profile, error)
}

// Kind identifies which transition a notification reports.
type Kind string

const (
	KindConfirmed Kind = "confirmed"
	KindCancelled Kind = "cancelled"
)

// DispatcherConfig wires the dispatcher's collaborators.
type DispatcherConfig struct {
	Sender   EmailSender
	Contacts ContactLookup
	Location *time.Location
	Metrics  *metrics.NotificationMetrics
	Logger   *logging.Logger
}

// Dispatcher sends the patient and professional emails for an appointment transition.
// Sends run concurrently and every one is attempted regardless of the others.
type Dispatcher struct {
	sender   EmailSender
	contacts ContactLookup
	loc      *time.Location
	metrics  *metrics.NotificationMetrics
	logger   *logging.Logger
}

// NewDispatcher builds a Dispatcher. A nil sender falls back to the stub sender.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Sender == nil {
		cfg.Sender = NewStubEmailSender(cfg.Logger)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Dispatcher{
		sender:   cfg.Sender,
		contacts: cfg.Contacts,
		loc:      cfg.Location,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.Component("notify"),
	}
}

// AppointmentConfirmed implements appointments.Notifier.
func (d *Dispatcher) AppointmentConfirmed(ctx context.Context, appt *appointments.Appointment) {
	d.dispatchAndLog(ctx, KindConfirmed, appt)
}

// AppointmentCancelled implements appointments.Notifier.
func (d *Dispatcher) AppointmentCancelled(ctx context.Context, appt *appointments.Appointment) {
	d.dispatchAndLog(ctx, KindCancelled, appt)
}

func (d *Dispatcher) dispatchAndLog(ctx context.Context, kind Kind, appt *appointments.Appointment) {
	if err := d.Dispatch(ctx, kind, appt); err != nil {
		d.logger.Warn("notification delivery incomplete", "appointment_id", appt.ID, "kind", kind, "error", err)
	}
}

type outgoing struct {
	template string
	msg      EmailMessage
}

// Dispatch renders and sends every applicable message for kind, waits for all of them to
// settle and returns the joined send errors. The professional copy is skipped when no
// professional email can be resolved.
func (d *Dispatcher) Dispatch(ctx context.Context, kind Kind, appt *appointments.Appointment) error {
	if appt == nil {
		return fmt.Errorf("notify: nil appointment")
	}
	patientTpl, professionalTpl := TemplatePatientConfirmed, TemplateProfessionalConfirmed
	if kind == KindCancelled {
		patientTpl, professionalTpl = TemplatePatientCancelled, TemplateProfessionalCancelled
	}

	profEmail, profName := d.professionalContact(ctx, appt)
	data := messageData{
		ServiceName:      fallback(appt.ServiceName, appt.ServiceSlug, "appointment"),
		ProfessionalName: fallback(appt.ProfessionalName, profName, "your professional"),
		PatientName:      fallback(appt.PatientName, appt.PatientEmail),
		PatientEmail:     appt.PatientEmail,
		When:             formatWhen(appt.ScheduledAt, d.loc),
	}

	var out []outgoing
	var errs []error
	if appt.PatientEmail != "" {
		msg, err := render(patientTpl, data)
		if err != nil {
			errs = append(errs, err)
		} else {
			msg.To, msg.ToName = appt.PatientEmail, appt.PatientName
			out = append(out, outgoing{template: patientTpl, msg: msg})
		}
	}
	if profEmail != "" {
		msg, err := render(professionalTpl, data)
		if err != nil {
			errs = append(errs, err)
		} else {
			msg.To, msg.ToName = profEmail, data.ProfessionalName
			out = append(out, outgoing{template: professionalTpl, msg: msg})
		}
	} else {
		d.logger.Debug("professional email unknown, skipping professional copy", "appointment_id", appt.ID)
	}

	sendErrs := make([]error, len(out))
	var wg sync.WaitGroup
	for i, o := range out {
		wg.Add(1)
		go func(i int, o outgoing) {
			defer wg.Done()
			err := d.sender.Send(ctx, o.msg)
			d.metrics.ObserveSend(o.template, err)
			if err != nil {
				sendErrs[i] = fmt.Errorf("%s to %s: %w", o.template, o.msg.To, err)
			}
		}(i, o)
	}
	wg.Wait()

	return errors.Join(append(errs, sendErrs...)...)
}

func (d *Dispatcher) professionalContact(ctx context.Context, appt *appointments.Appointment) (email, name string) {
	if d.contacts == nil || appt.ProfessionalID == "" || appt.ProfessionalID == appointments.UnknownIdentity {
		return "", ""
	}
	prof, err := d.contacts.Get(ctx, appt.ProfessionalID)
	if err != nil {
		if !errors.Is(err, users.ErrNotFound) {
			d.logger.Warn("professional lookup failed", "professional_id", appt.ProfessionalID, "error", err)
		}
		return "", ""
	}
	return strings.TrimSpace(prof.Email), prof.Name
}

func fallback(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var _ appointments.Notifier = (*Dispatcher)(nil)
