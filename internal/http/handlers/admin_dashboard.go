package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/wolfman30/clinic-booking/internal/dashboard"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// DashboardSource computes the admin overview.
type DashboardSource interface {
	Summarize(ctx context.Context, services []string) (*dashboard.Summary, error)
}

// AdminDashboardHandler handles the main dashboard overview endpoint.
type AdminDashboardHandler struct {
	source DashboardSource
	logger *logging.Logger
}

// NewAdminDashboardHandler creates a new admin dashboard handler.
func NewAdminDashboardHandler(source DashboardSource, logger *logging.Logger) *AdminDashboardHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminDashboardHandler{source: source, logger: logger}
}

// GetOverview returns appointment and user figures. Repeated or comma-separated
// ?service= values restrict appointment figures to those services.
func (h *AdminDashboardHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	var services []string
	for _, v := range r.URL.Query()["service"] {
		services = append(services, strings.Split(v, ",")...)
	}

	summary, err := h.source.Summarize(r.Context(), services)
	if err != nil {
		h.logger.Error("failed to build dashboard", "error", err)
		jsonError(w, "failed to build dashboard", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
