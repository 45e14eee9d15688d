package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/users"
)

// Cancellation is the normalized form of a provider cancellation.
type Cancellation struct {
	Email   string
	StartAt time.Time
}

// Normalizer turns provider payloads into domain inputs.
type Normalizer struct {
	directory ProfileDirectory
	resolver  ProfessionalResolver
	catalog   Catalog
}

// NewNormalizer builds a Normalizer. A nil resolver defaults to FirstProfessional and a
// nil catalog to DefaultCatalog.
func NewNormalizer(directory ProfileDirectory, resolver ProfessionalResolver, catalog Catalog) *Normalizer {
	if directory == nil {
		panic("booking: profile directory required")
	}
	if resolver == nil {
		resolver = FirstProfessional{Directory: directory}
	}
	if catalog == nil {
		catalog = DefaultCatalog
	}
	return &Normalizer{directory: directory, resolver: resolver, catalog: catalog}
}

// Booking builds a new appointment from a BOOKING_CREATED payload. Patient and
// professional identity come from stored profiles when they resolve; otherwise the raw
// attendee data is kept with appointments.UnknownIdentity.
func (n *Normalizer) Booking(ctx context.Context, p Payload) (*appointments.Appointment, error) {
	attendee, err := p.FirstAttendee()
	if err != nil {
		return nil, err
	}
	start, err := p.Start()
	if err != nil {
		return nil, err
	}

	appt := &appointments.Appointment{
		PatientID:    appointments.UnknownIdentity,
		PatientEmail: attendee.Email,
		PatientName:  attendee.Name,
		ServiceSlug:  p.Slug(),
		ServiceName:  n.catalog.Name(p.Slug(), p.Title),
		ScheduledAt:  start,
		Notes:        strings.TrimSpace(p.AdditionalNotes),
		ExternalUID:  strings.TrimSpace(p.UID),
	}

	patient, err := n.directory.FindByEmail(ctx, attendee.Email)
	switch {
	case err == nil:
		appt.PatientID = patient.UID
		appt.PatientEmail = patient.Email
		if patient.Name != "" {
			appt.PatientName = patient.Name
		}
	case !errors.Is(err, users.ErrNotFound):
		return nil, fmt.Errorf("booking: look up patient: %w", err)
	}

	appt.ProfessionalID = appointments.UnknownIdentity
	prof, err := n.resolver.ResolveProfessional(ctx, p)
	switch {
	case err == nil:
		appt.ProfessionalID = prof.UID
		appt.ProfessionalName = prof.Name
	case !errors.Is(err, users.ErrNotFound):
		return nil, fmt.Errorf("booking: resolve professional: %w", err)
	}
	return appt, nil
}

// Cancellation extracts the match keys from a BOOKING_CANCELLED payload.
func (n *Normalizer) Cancellation(p Payload) (Cancellation, error) {
	start, err := p.Start()
	if err != nil {
		return Cancellation{}, err
	}
	attendee, err := p.FirstAttendee()
	if err != nil {
		return Cancellation{}, err
	}
	return Cancellation{Email: attendee.Email, StartAt: start}, nil
}
