package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/pagoscl/internal/domain/errors"
	"github.com/cassiomorais/pagoscl/internal/domain/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDummyPayment(t *testing.T) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment(payment.VariantDummy, "Orden #1", 5000, "CLP", "cliente@example.com")
	require.NoError(t, err)
	p.SuccessURL = "https://shop.example.com/payments/" + p.Token + "/success"
	return p
}

func TestDummyProvider_Name(t *testing.T) {
	assert.Equal(t, "dummy", NewDummyProvider().Name())
}

func TestDummyProvider_CreateSession(t *testing.T) {
	p := NewDummyProvider()
	rec := newDummyPayment(t)

	res, err := p.CreateSession(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, SessionCreated, res.Outcome)
	assert.True(t, res.RedirectRequired())
	assert.Equal(t, rec.SuccessURL, res.RedirectURL)
	assert.True(t, strings.HasPrefix(rec.TransactionID, "dummy_txn_"))
	assert.Equal(t, payment.StatusWaiting, rec.Status)
}

func TestDummyProvider_CreateSession_Existing(t *testing.T) {
	p := NewDummyProvider()
	rec := newDummyPayment(t)
	rec.TransactionID = "already"

	res, err := p.CreateSession(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, SessionExisting, res.Outcome)
	assert.False(t, res.RedirectRequired())
	assert.Equal(t, payment.StatusCreated, rec.Status)
}

func TestDummyProvider_CreateSession_Failure(t *testing.T) {
	p := NewDummyProvider(WithFailureRate(1.0))
	rec := newDummyPayment(t)

	res, err := p.CreateSession(context.Background(), rec)
	assert.ErrorIs(t, err, domainErrors.ErrPaymentCreation)
	assert.Equal(t, SessionFailed, res.Outcome)
	assert.Contains(t, err.Error(), "simulated failure")
	assert.Equal(t, payment.StatusError, rec.Status)
	assert.Empty(t, rec.TransactionID)
}

func TestDummyProvider_CreateSession_ContextCancelled(t *testing.T) {
	p := NewDummyProvider(WithLatency(time.Second))
	rec := newDummyPayment(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.CreateSession(ctx, rec)
	assert.ErrorIs(t, err, domainErrors.ErrPaymentCreation)
	assert.Equal(t, SessionFailed, res.Outcome)
	assert.Equal(t, payment.StatusError, rec.Status)
}

func TestDummyProvider_RefreshStatus_Outcome(t *testing.T) {
	tests := []struct {
		name    string
		outcome payment.Status
	}{
		{"confirmed", payment.StatusConfirmed},
		{"rejected", payment.StatusRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewDummyProvider(WithOutcome(tt.outcome))
			rec := newDummyPayment(t)
			_, err := p.CreateSession(context.Background(), rec)
			require.NoError(t, err)

			remote, err := p.RefreshStatus(context.Background(), rec)
			require.NoError(t, err)
			assert.Equal(t, string(tt.outcome), remote["status"])
			assert.Equal(t, tt.outcome, rec.Status)
		})
	}
}

func TestDummyProvider_RefreshStatus_MissingTransaction(t *testing.T) {
	_, err := NewDummyProvider().RefreshStatus(context.Background(), newDummyPayment(t))
	assert.ErrorIs(t, err, domainErrors.ErrMissingTransactionID)
}

func TestDummyProvider_HandleNotification(t *testing.T) {
	p := NewDummyProvider()
	rec := newDummyPayment(t)
	_, err := p.CreateSession(context.Background(), rec)
	require.NoError(t, err)

	form := url.Values{"transaction_id": {rec.TransactionID}}
	req := httptest.NewRequest(http.MethodPost, "/payments/process/dummy/"+rec.Token, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ack, err := p.HandleNotification(context.Background(), rec, req)
	require.NoError(t, err)
	assert.Equal(t, OK, ack)
	assert.Equal(t, payment.StatusConfirmed, rec.Status)
}

func TestDummyProvider_HandleNotification_Malformed(t *testing.T) {
	p := NewDummyProvider()
	rec := newDummyPayment(t)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, err := p.HandleNotification(context.Background(), rec, req)
	assert.ErrorIs(t, err, domainErrors.ErrMalformedNotification)
}

func TestDummyProvider_Refund(t *testing.T) {
	p := NewDummyProvider()
	rec := newDummyPayment(t)
	rec.Status = payment.StatusConfirmed

	refunded, err := p.Refund(context.Background(), rec, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), refunded)
	assert.Equal(t, payment.StatusRefunded, rec.Status)

	var resp map[string]any
	ok, err := rec.Attr(AttrRefundResponse, &resp)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDummyProvider_Refund_NotConfirmed(t *testing.T) {
	p := NewDummyProvider()
	rec := newDummyPayment(t)

	_, err := p.Refund(context.Background(), rec, 0)
	assert.ErrorIs(t, err, domainErrors.ErrRefundNotPermitted)
	assert.Equal(t, payment.StatusCreated, rec.Status)
}

func TestDummyProvider_Refund_Failure(t *testing.T) {
	p := NewDummyProvider(WithFailureRate(1.0))
	rec := newDummyPayment(t)
	rec.Status = payment.StatusConfirmed

	_, err := p.Refund(context.Background(), rec, 1000)
	assert.ErrorIs(t, err, domainErrors.ErrPaymentRefund)
	assert.Equal(t, payment.StatusConfirmed, rec.Status)
}

func TestDummyProvider_CaptureRelease(t *testing.T) {
	p := NewDummyProvider()
	rec := newDummyPayment(t)

	_, err := p.Capture(context.Background(), rec, 0)
	assert.ErrorIs(t, err, domainErrors.ErrNotImplemented)
	assert.ErrorIs(t, p.Release(context.Background(), rec), domainErrors.ErrNotImplemented)
}
