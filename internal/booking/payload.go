// Package booking ingests scheduling-provider webhooks and turns them into appointment
// state machine calls.
package booking

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Trigger is the provider's event tag.
type Trigger string

const (
	TriggerBookingCreated     Trigger = "BOOKING_CREATED"
	TriggerBookingCancelled   Trigger = "BOOKING_CANCELLED"
	TriggerBookingRescheduled Trigger = "BOOKING_RESCHEDULED"
)

var (
	ErrMalformedPayload     = errors.New("booking: malformed webhook payload")
	ErrMissingAttendeeEmail = errors.New("booking: attendee email missing")
	ErrMissingStartTime     = errors.New("booking: start time missing")
	ErrInvalidStartTime     = errors.New("booking: start time is not ISO-8601")
)

// Event is the webhook envelope.
type Event struct {
	TriggerEvent Trigger `json:"triggerEvent"`
	CreatedAt    string  `json:"createdAt,omitempty"`
	Payload      Payload `json:"payload"`
}

// Payload is the booking body of an Event.
type Payload struct {
	UID             string     `json:"uid,omitempty"`
	Title           string     `json:"title,omitempty"`
	Type            string     `json:"type,omitempty"`
	EventTypeSlug   string     `json:"eventTypeSlug,omitempty"`
	StartTime       string     `json:"startTime,omitempty"`
	EndTime         string     `json:"endTime,omitempty"`
	AdditionalNotes string     `json:"additionalNotes,omitempty"`
	Attendees       []Attendee `json:"attendees"`
}

// Attendee is one booking participant on the provider side.
type Attendee struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	TimeZone string `json:"timeZone,omitempty"`
}

// ParseEvent decodes a webhook body.
func ParseEvent(body []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if evt.TriggerEvent == "" {
		return nil, fmt.Errorf("%w: triggerEvent missing", ErrMalformedPayload)
	}
	return &evt, nil
}

// Slug returns the event type slug, whichever field the provider filled.
func (p Payload) Slug() string {
	if s := strings.TrimSpace(p.Type); s != "" {
		return s
	}
	return strings.TrimSpace(p.EventTypeSlug)
}

// FirstAttendee returns the first attendee with a non-blank email.
func (p Payload) FirstAttendee() (Attendee, error) {
	for _, a := range p.Attendees {
		if email := strings.TrimSpace(a.Email); email != "" {
			a.Email = email
			a.Name = strings.TrimSpace(a.Name)
			return a, nil
		}
	}
	return Attendee{}, ErrMissingAttendeeEmail
}

// Start parses StartTime.
func (p Payload) Start() (time.Time, error) {
	raw := strings.TrimSpace(p.StartTime)
	if raw == "" {
		return time.Time{}, ErrMissingStartTime
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidStartTime, raw)
	}
	return t.UTC(), nil
}
