package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-booking/internal/accounts"
	"github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// UserDeleter removes a user and everything that references it.
type UserDeleter interface {
	DeleteUser(ctx context.Context, actorID, targetID string) (*accounts.Result, error)
}

// AdminUsersHandler exposes account administration.
type AdminUsersHandler struct {
	deleter UserDeleter
	logger  *logging.Logger
}

func NewAdminUsersHandler(deleter UserDeleter, logger *logging.Logger) *AdminUsersHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminUsersHandler{deleter: deleter, logger: logger.Component("admin_users")}
}

// DeleteUser handles DELETE /admin/users/{userID}.
func (h *AdminUsersHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		jsonError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	res, err := h.deleter.DeleteUser(r.Context(), caller.UID, chi.URLParam(r, "userID"))
	if err != nil {
		var phaseErr *accounts.PhaseError
		switch {
		case errors.Is(err, accounts.ErrMissingUserID):
			jsonError(w, "user id is required", http.StatusBadRequest)
		case errors.Is(err, accounts.ErrSelfDeletion):
			jsonError(w, "admins cannot delete their own account", http.StatusBadRequest)
		case errors.As(err, &phaseErr):
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": phaseErr.Message(),
				"phase": string(phaseErr.Phase),
			})
		default:
			h.logger.Error("user deletion failed", "error", err)
			jsonError(w, "user deletion failed", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}
