package service

import (
	"github.com/cassiomorais/pagoscl/internal/domain/payment"
	"github.com/cassiomorais/pagoscl/internal/providers"
)

// CreatePaymentRequest is the input for a new payment record.
// Controllers convert their HTTP DTOs to this type.
type CreatePaymentRequest struct {
	Variant      payment.Variant
	Description  string
	Total        int64
	Currency     string
	BillingEmail string
	ExtraData    map[string]any
}

// CheckoutResult is the outcome of StartCheckout.
type CheckoutResult struct {
	Payment *payment.Payment
	Session providers.SessionResult
}

// RefreshResult carries the refreshed payment and the gateway's raw answer.
type RefreshResult struct {
	Payment *payment.Payment
	Remote  map[string]any
}

// RefundResult carries the refunded payment and the amount sent back.
type RefundResult struct {
	Payment        *payment.Payment
	RefundedAmount int64
}

// ReconcileReport summarises a reconcile run.
type ReconcileReport struct {
	Checked int
	Changed int
	Failed  int
}
