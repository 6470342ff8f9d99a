package controller

import (
	"net/http"

	"github.com/cassiomorais/pagoscl/internal/domain/payment"
	"github.com/cassiomorais/pagoscl/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// NotificationController receives gateway callbacks.
type NotificationController struct {
	paymentService *service.PaymentService
}

func NewNotificationController(paymentService *service.PaymentService) *NotificationController {
	return &NotificationController{paymentService: paymentService}
}

// Process handles POST /payments/process/{variant}/{token}
func (h *NotificationController) Process(w http.ResponseWriter, r *http.Request) {
	variant := payment.Variant(chi.URLParam(r, "variant"))
	token := chi.URLParam(r, "token")

	ack, err := h.paymentService.ProcessNotification(r.Context(), variant, token, r)
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).
			Str("variant", string(variant)).
			Str("token", token).
			Msg("notification rejected")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ack)
}
