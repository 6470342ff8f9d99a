package providers

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	domainErrors "github.com/cassiomorais/pagoscl/internal/domain/errors"
	"github.com/cassiomorais/pagoscl/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DummyProvider is an in-process gateway for development and tests. It never
// leaves the process and settles payments with a configured outcome.
type DummyProvider struct {
	failureRate float64 // 0.0 to 1.0
	latency     time.Duration
	outcome     payment.Status
}

// DummyOption configures a DummyProvider.
type DummyOption func(*DummyProvider)

// WithFailureRate sets the probability that a gateway call fails.
func WithFailureRate(rate float64) DummyOption {
	return func(p *DummyProvider) { p.failureRate = rate }
}

// WithLatency sets the simulated gateway latency.
func WithLatency(d time.Duration) DummyOption {
	return func(p *DummyProvider) { p.latency = d }
}

// WithOutcome sets the status RefreshStatus settles waiting payments with.
func WithOutcome(status payment.Status) DummyOption {
	return func(p *DummyProvider) { p.outcome = status }
}

// NewDummyProvider creates a new dummy provider that confirms every payment.
func NewDummyProvider(opts ...DummyOption) *DummyProvider {
	p := &DummyProvider{
		outcome: payment.StatusConfirmed,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *DummyProvider) Name() string { return string(payment.VariantDummy) }

func (p *DummyProvider) CreateSession(ctx context.Context, rec payment.Record) (SessionResult, error) {
	if rec.ProviderTransactionID() != "" {
		return SessionResult{Outcome: SessionExisting}, nil
	}
	if err := p.wait(ctx); err != nil {
		return p.failSession(rec, err)
	}
	if p.fails() {
		return p.failSession(rec, fmt.Errorf("dummy: simulated failure for payment %s", rec.Details().Token))
	}

	txID := fmt.Sprintf("dummy_txn_%s", uuid.New().String()[:8])
	rec.SetProviderTransactionID(txID)
	rec.ChangeStatus(payment.StatusWaiting, "")
	return Created(rec.Details().SuccessURL), nil
}

func (p *DummyProvider) failSession(rec payment.Record, cause error) (SessionResult, error) {
	rec.ChangeStatus(payment.StatusError, cause.Error())
	return Failed(cause.Error()), fmt.Errorf("%w: %v", domainErrors.ErrPaymentCreation, cause)
}

func (p *DummyProvider) HandleNotification(ctx context.Context, rec payment.Record, r *http.Request) (Ack, error) {
	values, err := NotificationValues(r)
	if err != nil {
		return Ack{}, err
	}
	if _, err := RequireField(values, "transaction_id"); err != nil {
		return Ack{}, err
	}
	if rec.CurrentStatus().IsPending() {
		if _, err := p.RefreshStatus(ctx, rec); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("provider", p.Name()).Msg("refresh after notification failed")
		}
	}
	return OK, nil
}

func (p *DummyProvider) RefreshStatus(ctx context.Context, rec payment.Record) (map[string]any, error) {
	if rec.ProviderTransactionID() == "" {
		return nil, domainErrors.ErrMissingTransactionID
	}
	if err := p.wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrGatewayRequest, err)
	}
	if p.fails() {
		return nil, fmt.Errorf("%w: dummy: simulated status failure", domainErrors.ErrGatewayRequest)
	}

	remote := map[string]any{
		"transaction_id": rec.ProviderTransactionID(),
		"status":         string(p.outcome),
	}
	if rec.CurrentStatus().IsPending() {
		Transition(*zerolog.Ctx(ctx), rec, p.outcome, "")
	}
	return remote, nil
}

func (p *DummyProvider) Refund(ctx context.Context, rec payment.Record, amount int64) (int64, error) {
	toRefund, err := RefundAmount(rec, amount)
	if err != nil {
		return 0, err
	}
	if err := p.wait(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", domainErrors.ErrPaymentRefund, err)
	}
	if p.fails() {
		return 0, fmt.Errorf("%w: dummy: simulated refund failure", domainErrors.ErrPaymentRefund)
	}

	if err := rec.SetAttr(AttrRefundResponse, map[string]any{
		"refund_id": fmt.Sprintf("dummy_refund_%s", uuid.New().String()[:8]),
		"amount":    toRefund,
	}); err != nil {
		return 0, err
	}
	rec.ChangeStatus(payment.StatusRefunded, "")
	return toRefund, nil
}

func (p *DummyProvider) Capture(context.Context, payment.Record, int64) (int64, error) {
	return 0, domainErrors.ErrNotImplemented
}

func (p *DummyProvider) Release(context.Context, payment.Record) error {
	return domainErrors.ErrNotImplemented
}

func (p *DummyProvider) wait(ctx context.Context) error {
	if p.latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(p.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *DummyProvider) fails() bool {
	return p.failureRate > 0 && rand.Float64() < p.failureRate
}
