package appointments

import (
	"errors"
	"time"
)

// Status is the lifecycle state of an appointment.
//
// Allowed transitions:
//
//	(create) → confirmed
//	confirmed → completed
//	confirmed → cancelled
//
// completed and cancelled are terminal.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusConfirmed: {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// CanTransition reports whether an appointment in from may move to to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Source identifies what triggered a transition.
type Source string

const (
	SourceClient       Source = "client"
	SourceWebhook      Source = "webhook"
	SourcePatient      Source = "patient"
	SourceProfessional Source = "professional"
)

// UnknownIdentity marks a participant that could not be resolved to a stored profile.
const UnknownIdentity = "unknown"

var (
	ErrNotFound           = errors.New("appointments: not found")
	ErrInvalidTransition  = errors.New("appointments: invalid status transition")
	ErrCancellationWindow = errors.New("appointments: cancellation window has closed")
	ErrForbidden          = errors.New("appointments: caller may not act on this appointment")
	ErrInvalid            = errors.New("appointments: invalid appointment")
)

// Appointment is a scheduled session between a patient and a professional.
type Appointment struct {
	ID               string    `json:"id"`
	PatientID        string    `json:"patient_id"`
	PatientEmail     string    `json:"patient_email"`
	PatientName      string    `json:"patient_name"`
	ProfessionalID   string    `json:"professional_id"`
	ProfessionalName string    `json:"professional_name"`
	ServiceSlug      string    `json:"service_slug"`
	ServiceName      string    `json:"service_name"`
	ScheduledAt      time.Time `json:"scheduled_at"`
	Status           Status    `json:"status"`
	Notes            string    `json:"notes,omitempty"`
	ExternalUID      string    `json:"external_uid,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ClinicalNote is the structured session record a professional attaches on completion.
type ClinicalNote struct {
	ID             string    `json:"id"`
	AppointmentID  string    `json:"appointment_id"`
	PatientID      string    `json:"patient_id"`
	ProfessionalID string    `json:"professional_id"`
	Mood           string    `json:"mood,omitempty"`
	Participation  string    `json:"participation,omitempty"`
	AreasWorked    []string  `json:"areas_worked,omitempty"`
	Text           string    `json:"text,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NoteInput carries the optional clinical note captured when completing a session.
type NoteInput struct {
	Mood          string   `json:"mood"`
	Participation string   `json:"participation"`
	AreasWorked   []string `json:"areas_worked"`
	Text          string   `json:"text"`
}

// Empty reports whether the note carries no content.
func (n *NoteInput) Empty() bool {
	return n == nil || (n.Mood == "" && n.Participation == "" && len(n.AreasWorked) == 0 && n.Text == "")
}
