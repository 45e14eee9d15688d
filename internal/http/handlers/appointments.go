package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/users"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// AppointmentService is the state machine surface used by the client API.
type AppointmentService interface {
	Book(ctx context.Context, appt *appointments.Appointment, source appointments.Source) (*appointments.Appointment, error)
	ListForPatient(ctx context.Context, patientID string, limit int) ([]appointments.Appointment, error)
	CancelByPatient(ctx context.Context, id, patientID string) (*appointments.Appointment, error)
	Complete(ctx context.Context, id, professionalID string, note *appointments.NoteInput) (*appointments.Appointment, error)
}

// ProfileGetter loads user profiles by uid.
type ProfileGetter interface {
	Get(ctx context.Context, uid string) (*users.Profile, error)
}

// AppointmentsHandler serves the patient and professional appointment endpoints.
type AppointmentsHandler struct {
	service  AppointmentService
	profiles ProfileGetter
	catalog  booking.Catalog
	logger   *logging.Logger
}

func NewAppointmentsHandler(service AppointmentService, profiles ProfileGetter, catalog booking.Catalog, logger *logging.Logger) *AppointmentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if catalog == nil {
		catalog = booking.DefaultCatalog
	}
	return &AppointmentsHandler{service: service, profiles: profiles, catalog: catalog, logger: logger.Component("appointments_api")}
}

type bookRequest struct {
	ProfessionalID string `json:"professional_id"`
	ServiceSlug    string `json:"service_slug"`
	ScheduledAt    string `json:"scheduled_at"`
	Notes          string `json:"notes"`
}

// Book handles POST /api/appointments for the authenticated patient.
func (h *AppointmentsHandler) Book(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		jsonError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	req.ProfessionalID = strings.TrimSpace(req.ProfessionalID)
	if req.ProfessionalID == "" || strings.TrimSpace(req.ServiceSlug) == "" {
		jsonError(w, "professional_id and service_slug are required", http.StatusBadRequest)
		return
	}
	at, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		jsonError(w, "scheduled_at must be RFC3339", http.StatusBadRequest)
		return
	}

	patient, err := h.profiles.Get(r.Context(), caller.UID)
	if err != nil {
		h.profileError(w, err, "patient")
		return
	}
	professional, err := h.profiles.Get(r.Context(), req.ProfessionalID)
	if err != nil {
		h.profileError(w, err, "professional")
		return
	}
	if professional.Role != users.RoleProfessional {
		jsonError(w, "professional_id does not name a professional", http.StatusBadRequest)
		return
	}

	slug := strings.TrimSpace(req.ServiceSlug)
	appt, err := h.service.Book(r.Context(), &appointments.Appointment{
		PatientID:        patient.UID,
		PatientEmail:     patient.Email,
		PatientName:      patient.Name,
		ProfessionalID:   professional.UID,
		ProfessionalName: professional.Name,
		ServiceSlug:      slug,
		ServiceName:      h.catalog.Name(slug, ""),
		ScheduledAt:      at.UTC(),
		Notes:            strings.TrimSpace(req.Notes),
	}, appointments.SourceClient)
	if err != nil {
		h.appointmentError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// List handles GET /api/appointments, returning the caller's own appointments.
func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		jsonError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.service.ListForPatient(r.Context(), caller.UID, limit)
	if err != nil {
		h.appointmentError(w, err)
		return
	}
	if list == nil {
		list = []appointments.Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": list})
}

// Cancel handles POST /api/appointments/{id}/cancel for the owning patient.
func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		jsonError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	appt, err := h.service.CancelByPatient(r.Context(), chi.URLParam(r, "id"), caller.UID)
	if err != nil {
		h.appointmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Complete handles POST /api/appointments/{id}/complete. Professionals may only complete
// their own sessions; admins may complete any. The body is an optional clinical note.
func (h *AppointmentsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		jsonError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var note appointments.NoteInput
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&note); err != nil && !errors.Is(err, io.EOF) {
			jsonError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}

	owner := caller.UID
	if caller.Role == users.RoleAdmin {
		owner = ""
	}
	appt, err := h.service.Complete(r.Context(), chi.URLParam(r, "id"), owner, &note)
	if err != nil {
		h.appointmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *AppointmentsHandler) profileError(w http.ResponseWriter, err error, who string) {
	if errors.Is(err, users.ErrNotFound) {
		jsonError(w, who+" profile not found", http.StatusNotFound)
		return
	}
	h.logger.Error("profile lookup failed", "who", who, "error", err)
	jsonError(w, "profile lookup failed", http.StatusInternalServerError)
}

func (h *AppointmentsHandler) appointmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointments.ErrNotFound):
		jsonError(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, appointments.ErrForbidden):
		jsonError(w, "not allowed to act on this appointment", http.StatusForbidden)
	case errors.Is(err, appointments.ErrCancellationWindow):
		jsonError(w, "cancellation window has closed", http.StatusConflict)
	case errors.Is(err, appointments.ErrInvalidTransition):
		jsonError(w, "appointment is no longer confirmed", http.StatusConflict)
	case errors.Is(err, appointments.ErrInvalid):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("appointment operation failed", "error", err)
		jsonError(w, "appointment operation failed", http.StatusInternalServerError)
	}
}
