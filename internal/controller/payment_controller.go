package controller

import (
	"errors"
	"net/http"
	"strconv"

	domainErrors "github.com/cassiomorais/pagoscl/internal/domain/errors"
	"github.com/cassiomorais/pagoscl/internal/domain/payment"
	"github.com/cassiomorais/pagoscl/internal/providers"
	"github.com/cassiomorais/pagoscl/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// PaymentController handles payment-related HTTP requests.
type PaymentController struct {
	paymentService *service.PaymentService
}

// NewPaymentController creates a new PaymentController.
func NewPaymentController(paymentService *service.PaymentService) *PaymentController {
	return &PaymentController{paymentService: paymentService}
}

// CreatePayment handles POST /api/v1/payments
func (h *PaymentController) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.paymentService.CreatePayment(r.Context(), service.CreatePaymentRequest{
		Variant:      payment.Variant(req.Variant),
		Description:  req.Description,
		Total:        req.Total,
		Currency:     req.Currency,
		BillingEmail: req.BillingEmail,
		ExtraData:    req.ExtraData,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromPayment(p))
}

// GetPayment handles GET /api/v1/payments/{token}
func (h *PaymentController) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.paymentService.GetPayment(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPayment(p))
}

// ListEvents handles GET /api/v1/payments/{token}/events
func (h *PaymentController) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.paymentService.PaymentEvents(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fromEvents(events))
}

// ListPayments handles GET /api/v1/payments
func (h *PaymentController) ListPayments(w http.ResponseWriter, r *http.Request) {
	filter := payment.ListFilter{}
	q := r.URL.Query()

	if s := q.Get("status"); s != "" {
		status := payment.Status(s)
		filter.Status = &status
	}
	if s := q.Get("variant"); s != "" {
		variant := payment.Variant(s)
		filter.Variant = &variant
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	filter.SortBy = q.Get("sort_by")
	filter.SortOrder = q.Get("sort_order")

	payments, err := h.paymentService.ListPayments(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*PaymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, FromPayment(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// StartCheckout handles POST /api/v1/payments/{token}/checkout
func (h *PaymentController) StartCheckout(w http.ResponseWriter, r *http.Request) {
	res, err := h.paymentService.StartCheckout(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CheckoutResponse{
		Status:      res.Session.Outcome.String(),
		RedirectURL: res.Session.RedirectURL,
		Reason:      res.Session.Reason,
		Payment:     FromPayment(res.Payment),
	})
}

// Checkout handles GET /payments/{token}/checkout. The user is sent to the
// gateway page; a failed or already opened session answers 409. Other
// errors map as on the API.
func (h *PaymentController) Checkout(w http.ResponseWriter, r *http.Request) {
	res, err := h.paymentService.StartCheckout(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		if res != nil && errors.Is(err, domainErrors.ErrPaymentCreation) {
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("token", res.Payment.Token).Msg("checkout failed")
			writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "checkout_failed"})
			return
		}
		writeError(w, err)
		return
	}

	switch {
	case res.Session.RedirectRequired():
		http.Redirect(w, r, res.Session.RedirectURL, http.StatusFound)
	case res.Session.Outcome == providers.SessionExisting:
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "payment session already started", Code: "session_exists"})
	default:
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: res.Session.Reason, Code: "checkout_failed"})
	}
}

// RefreshStatus handles POST /api/v1/payments/{token}/refresh
func (h *PaymentController) RefreshStatus(w http.ResponseWriter, r *http.Request) {
	res, err := h.paymentService.RefreshStatus(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RefreshResponse{Payment: FromPayment(res.Payment), Remote: res.Remote})
}

// RefundPayment handles POST /api/v1/payments/{token}/refund
func (h *PaymentController) RefundPayment(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.paymentService.RefundPayment(r.Context(), chi.URLParam(r, "token"), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RefundResponse{RefundedAmount: res.RefundedAmount, Payment: FromPayment(res.Payment)})
}

// CapturePayment handles POST /api/v1/payments/{token}/capture
func (h *PaymentController) CapturePayment(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, captured, err := h.paymentService.CapturePayment(r.Context(), chi.URLParam(r, "token"), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CaptureResponse{CapturedAmount: captured, Payment: FromPayment(p)})
}

// ReleasePayment handles POST /api/v1/payments/{token}/release
func (h *PaymentController) ReleasePayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.paymentService.ReleasePayment(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPayment(p))
}

// Summary handles the success and failure return URLs.
func (h *PaymentController) Summary(w http.ResponseWriter, r *http.Request) {
	p, err := h.paymentService.GetPayment(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPayment(p))
}
