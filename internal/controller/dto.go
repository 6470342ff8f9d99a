package controller

import (
	"time"

	"github.com/cassiomorais/pagoscl/internal/domain/payment"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (validation tags, optional fields).
// Controllers convert these to service layer DTOs before calling business logic.

// CreatePaymentRequest holds the input for creating a payment.
type CreatePaymentRequest struct {
	Variant      string         `json:"variant" validate:"required"`
	Description  string         `json:"description" validate:"max=255"`
	Total        int64          `json:"total" validate:"required,gt=0"`
	Currency     string         `json:"currency" validate:"required,len=3"`
	BillingEmail string         `json:"billing_email" validate:"omitempty,email"`
	ExtraData    map[string]any `json:"extra_data,omitempty"`
}

// AmountRequest carries an optional amount; zero means the payment total.
type AmountRequest struct {
	Amount int64 `json:"amount" validate:"gte=0"`
}

// --- Response DTOs ---

// PaymentResponse represents a payment in API responses.
type PaymentResponse struct {
	Token         string    `json:"token"`
	Variant       string    `json:"variant"`
	Description   string    `json:"description"`
	Total         int64     `json:"total"`
	Currency      string    `json:"currency"`
	BillingEmail  string    `json:"billing_email,omitempty"`
	Status        string    `json:"status"`
	Message       string    `json:"message,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	SuccessURL    string    `json:"success_url"`
	FailureURL    string    `json:"failure_url"`
	ProcessURL    string    `json:"process_url"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CheckoutResponse answers a checkout started through the API.
type CheckoutResponse struct {
	Status      string           `json:"status"`
	RedirectURL string           `json:"redirect_url,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	Payment     *PaymentResponse `json:"payment"`
}

// RefreshResponse carries the refreshed payment and the gateway's answer.
type RefreshResponse struct {
	Payment *PaymentResponse `json:"payment"`
	Remote  map[string]any   `json:"remote"`
}

// RefundResponse carries the refunded payment.
type RefundResponse struct {
	RefundedAmount int64            `json:"refunded_amount"`
	Payment        *PaymentResponse `json:"payment"`
}

// CaptureResponse carries the captured payment.
type CaptureResponse struct {
	CapturedAmount int64            `json:"captured_amount"`
	Payment        *PaymentResponse `json:"payment"`
}

// EventResponse is one entry of a payment's audit trail.
type EventResponse struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// FromPayment converts a domain payment to API response.
func FromPayment(p *payment.Payment) *PaymentResponse {
	return &PaymentResponse{
		Token:         p.Token,
		Variant:       string(p.Variant),
		Description:   p.Description,
		Total:         p.Total,
		Currency:      p.Currency,
		BillingEmail:  p.BillingEmail,
		Status:        string(p.Status),
		Message:       p.Message,
		TransactionID: p.TransactionID,
		SuccessURL:    p.SuccessURL,
		FailureURL:    p.FailureURL,
		ProcessURL:    p.ProcessURL,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func fromEvents(events []*payment.Event) []EventResponse {
	resp := make([]EventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, EventResponse{ID: e.ID.String(), Type: e.Type, Data: e.Data, CreatedAt: e.CreatedAt})
	}
	return resp
}
