package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// maxWebhookBody caps inbound scheduling deliveries.
const maxWebhookBody = 1 << 20

// WebhookProcessor handles one verified-or-not scheduling delivery.
type WebhookProcessor interface {
	Handle(ctx context.Context, body []byte, signature string) (booking.Result, error)
}

// SchedulingWebhookHandler receives booking lifecycle events from the scheduling provider.
type SchedulingWebhookHandler struct {
	processor WebhookProcessor
	logger    *logging.Logger
}

func NewSchedulingWebhookHandler(processor WebhookProcessor, logger *logging.Logger) *SchedulingWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SchedulingWebhookHandler{processor: processor, logger: logger.Component("scheduling_webhook")}
}

// Handle reads the raw body, since the signature covers the exact bytes sent.
func (h *SchedulingWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(body) > maxWebhookBody {
		jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	res, err := h.processor.Handle(r.Context(), body, r.Header.Get(booking.SignatureHeader))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, booking.ErrInvalidSignature):
		h.logger.Warn("rejected webhook with invalid signature", "remote", r.RemoteAddr)
		jsonError(w, "invalid signature", http.StatusUnauthorized)
	case booking.IsValidation(err):
		h.logger.Warn("rejected malformed webhook", "error", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("webhook processing failed", "error", err)
		jsonError(w, "webhook processing failed", http.StatusInternalServerError)
	}
}
