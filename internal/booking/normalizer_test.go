package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/users"
)

type directory struct {
	profiles []*users.Profile
	err      error
}

func (d *directory) Get(_ context.Context, uid string) (*users.Profile, error) {
	for _, p := range d.profiles {
		if p.UID == uid {
			return p, nil
		}
	}
	return nil, users.ErrNotFound
}

func (d *directory) FindByEmail(_ context.Context, email string) (*users.Profile, error) {
	if d.err != nil {
		return nil, d.err
	}
	for _, p := range d.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, users.ErrNotFound
}

func (d *directory) FirstByRole(_ context.Context, role users.Role) (*users.Profile, error) {
	for _, p := range d.profiles {
		if p.Role == role {
			return p, nil
		}
	}
	return nil, users.ErrNotFound
}

func clinicDirectory() *directory {
	return &directory{profiles: []*users.Profile{
		{UID: "pro-1", Role: users.RoleProfessional, Email: "lima@example.com", Name: "Dr. Lima"},
		{UID: "pro-2", Role: users.RoleProfessional, Email: "rocha@example.com", Name: "Dr. Rocha"},
		{UID: "pat-1", Role: users.RolePatient, Email: "ana@example.com", Name: "Ana Souza"},
	}}
}

func createdPayload(email string) Payload {
	return Payload{
		UID:       "b-1",
		Title:     "Avaliação between Ana and Dr. Lima",
		Type:      "avaliacao",
		StartTime: "2026-04-01T10:00:00-03:00",
		Attendees: []Attendee{{Email: email, Name: "Ana (typed in widget)"}},
	}
}

func TestNormalizer_BookingResolvesProfiles(t *testing.T) {
	n := NewNormalizer(clinicDirectory(), nil, nil)

	appt, err := n.Booking(context.Background(), createdPayload("ana@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "pat-1", appt.PatientID)
	assert.Equal(t, "Ana Souza", appt.PatientName, "name comes from the stored profile")
	assert.Equal(t, "pro-1", appt.ProfessionalID)
	assert.Equal(t, "Dr. Lima", appt.ProfessionalName)
	assert.Equal(t, "Avaliação inicial", appt.ServiceName)
	assert.Equal(t, time.Date(2026, 4, 1, 13, 0, 0, 0, time.UTC), appt.ScheduledAt)
	assert.Equal(t, "b-1", appt.ExternalUID)
}

func TestNormalizer_BookingUnknownPatient(t *testing.T) {
	n := NewNormalizer(clinicDirectory(), nil, nil)

	appt, err := n.Booking(context.Background(), createdPayload("new@example.com"))
	require.NoError(t, err)
	assert.Equal(t, appointments.UnknownIdentity, appt.PatientID)
	assert.Equal(t, "new@example.com", appt.PatientEmail)
	assert.Equal(t, "Ana (typed in widget)", appt.PatientName)
}

func TestNormalizer_BookingWithoutProfessional(t *testing.T) {
	n := NewNormalizer(&directory{}, nil, nil)

	appt, err := n.Booking(context.Background(), createdPayload("ana@example.com"))
	require.NoError(t, err)
	assert.Equal(t, appointments.UnknownIdentity, appt.ProfessionalID)
}

func TestNormalizer_BookingValidation(t *testing.T) {
	n := NewNormalizer(clinicDirectory(), nil, nil)

	p := createdPayload("")
	_, err := n.Booking(context.Background(), p)
	assert.ErrorIs(t, err, ErrMissingAttendeeEmail)

	p = createdPayload("ana@example.com")
	p.StartTime = ""
	_, err = n.Booking(context.Background(), p)
	assert.ErrorIs(t, err, ErrMissingStartTime)

	p.StartTime = "tomorrow at ten"
	_, err = n.Booking(context.Background(), p)
	assert.ErrorIs(t, err, ErrInvalidStartTime)
}

func TestNormalizer_BookingLookupFailure(t *testing.T) {
	dir := clinicDirectory()
	dir.err = errors.New("db down")
	_, err := NewNormalizer(dir, nil, nil).Booking(context.Background(), createdPayload("ana@example.com"))
	require.Error(t, err)
	assert.False(t, IsValidation(err))
}

func TestNormalizer_EventTypeRouting(t *testing.T) {
	dir := clinicDirectory()
	resolver := EventTypeRouting{
		Directory: dir,
		Routes:    map[string]string{"sessao-terapia": "pro-2"},
		Fallback:  FirstProfessional{Directory: dir},
	}
	n := NewNormalizer(dir, resolver, nil)

	p := createdPayload("ana@example.com")
	p.Type = "sessao-terapia"
	appt, err := n.Booking(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "pro-2", appt.ProfessionalID)

	p.Type = "retorno"
	appt, err = n.Booking(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "pro-1", appt.ProfessionalID, "unrouted slug uses fallback")
}

func TestNormalizer_Cancellation(t *testing.T) {
	n := NewNormalizer(clinicDirectory(), nil, nil)

	c, err := n.Cancellation(Payload{StartTime: "2026-04-01T13:00:00Z", Attendees: []Attendee{{Email: " ana@example.com "}}})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", c.Email)

	_, err = n.Cancellation(Payload{Attendees: []Attendee{{Email: "ana@example.com"}}})
	assert.ErrorIs(t, err, ErrMissingStartTime)
}

func TestCatalog_Name(t *testing.T) {
	assert.Equal(t, "Consulta de retorno", DefaultCatalog.Name("retorno", "x"))
	assert.Equal(t, "custom-slug", DefaultCatalog.Name("custom-slug", "Title"))
	assert.Equal(t, "Title", DefaultCatalog.Name("", " Title "))
}

func TestParseEvent(t *testing.T) {
	_, err := ParseEvent([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = ParseEvent([]byte(`{"payload":{}}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	evt, err := ParseEvent([]byte(`{"triggerEvent":"BOOKING_CREATED","payload":{"eventTypeSlug":"retorno"}}`))
	require.NoError(t, err)
	assert.Equal(t, "retorno", evt.Payload.Slug())
}
