package testutil

import (
	"testing"

	"github.com/cassiomorais/pagoscl/internal/domain/payment"
	"github.com/stretchr/testify/require"
)

// NewTestPayment returns a payment in the created status with host URLs
// under https://tienda.example.cl.
func NewTestPayment(t *testing.T, variant payment.Variant, total int64) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment(variant, "Orden de prueba", total, "CLP", "cliente@example.cl")
	require.NoError(t, err)
	base := "https://tienda.example.cl"
	p.SuccessURL = base + "/payments/" + p.Token + "/success"
	p.FailureURL = base + "/payments/" + p.Token + "/failure"
	p.ProcessURL = base + "/payments/process/" + string(variant) + "/" + p.Token
	return p
}

// NewWaitingPayment returns a payment already sent to the gateway.
func NewWaitingPayment(t *testing.T, variant payment.Variant, total int64, transactionID string) *payment.Payment {
	t.Helper()
	p := NewTestPayment(t, variant, total)
	p.Status = payment.StatusWaiting
	p.TransactionID = transactionID
	return p
}

// NewConfirmedPayment returns a payment the gateway already confirmed.
func NewConfirmedPayment(t *testing.T, variant payment.Variant, total int64, transactionID string) *payment.Payment {
	t.Helper()
	p := NewWaitingPayment(t, variant, total, transactionID)
	p.Status = payment.StatusConfirmed
	return p
}
