package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/pagoscl/internal/domain/errors"
	"github.com/cassiomorais/pagoscl/internal/domain/payment"
	"github.com/cassiomorais/pagoscl/internal/infrastructure/observability"
	"github.com/cassiomorais/pagoscl/internal/providers"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a PaymentService.
type Option func(*PaymentService)

// WithLocker guards StartCheckout with a lock per payment token.
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(s *PaymentService) {
		s.locker = l
		s.lockTTL = ttl
	}
}

// PaymentService orchestrates payment records and the gateways that process them.
type PaymentService struct {
	paymentRepo     payment.Repository
	txManager       TransactionManager
	providerFactory *providers.Factory
	metrics         *observability.Metrics
	tracer          trace.Tracer
	baseURL         string
	locker          Locker
	lockTTL         time.Duration
}

// NewPaymentService creates a new PaymentService. baseURL is the public
// address gateways redirect users and send notifications to.
func NewPaymentService(
	paymentRepo payment.Repository,
	txManager TransactionManager,
	providerFactory *providers.Factory,
	metrics *observability.Metrics,
	baseURL string,
	opts ...Option,
) *PaymentService {
	s := &PaymentService{
		paymentRepo:     paymentRepo,
		txManager:       txManager,
		providerFactory: providerFactory,
		metrics:         metrics,
		tracer:          otel.Tracer("github.com/cassiomorais/pagoscl/internal/service"),
		baseURL:         strings.TrimRight(baseURL, "/"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreatePayment stores a new payment record for a registered variant.
func (s *PaymentService) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*payment.Payment, error) {
	if _, _, err := s.providerFactory.Get(req.Variant); err != nil {
		return nil, err
	}

	p, err := payment.NewPayment(req.Variant, req.Description, req.Total, req.Currency, req.BillingEmail)
	if err != nil {
		return nil, err
	}
	p.SuccessURL = s.baseURL + "/payments/" + p.Token + "/success"
	p.FailureURL = s.baseURL + "/payments/" + p.Token + "/failure"
	p.ProcessURL = s.baseURL + "/payments/process/" + string(p.Variant) + "/" + p.Token

	if len(req.ExtraData) > 0 {
		if err := p.SetAttr(providers.AttrExtraData, req.ExtraData); err != nil {
			return nil, err
		}
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.paymentRepo.Create(txCtx, p); err != nil {
			return err
		}
		return s.paymentRepo.AddEvent(txCtx, payment.NewEvent(p.Token, payment.EventCreated, map[string]any{
			"variant":  string(p.Variant),
			"total":    p.Total,
			"currency": p.Currency,
		}))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentsCreated.WithLabelValues(string(p.Variant)).Inc()
	zerolog.Ctx(ctx).Info().
		Str("token", p.Token).
		Str("variant", string(p.Variant)).
		Int64("total", p.Total).
		Msg("payment created")
	return p, nil
}

// GetPayment retrieves a payment by token.
func (s *PaymentService) GetPayment(ctx context.Context, token string) (*payment.Payment, error) {
	return s.paymentRepo.GetByToken(ctx, token)
}

// PaymentEvents returns the audit trail of a payment.
func (s *PaymentService) PaymentEvents(ctx context.Context, token string) ([]*payment.Event, error) {
	if _, err := s.paymentRepo.GetByToken(ctx, token); err != nil {
		return nil, err
	}
	return s.paymentRepo.ListEvents(ctx, token)
}

// ListPayments lists payments with filters.
func (s *PaymentService) ListPayments(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error) {
	return s.paymentRepo.List(ctx, filter)
}

// StartCheckout opens the gateway session for a payment. The record is
// persisted whatever the outcome so a failed attempt leaves it in error.
func (s *PaymentService) StartCheckout(ctx context.Context, token string) (*CheckoutResult, error) {
	if s.locker != nil {
		release, err := s.locker.Lock(ctx, "checkout:"+token, s.lockTTL)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("token", token).Msg("failed to release checkout lock")
			}
		}()
	}

	var session providers.SessionResult
	p, err := s.mutate(ctx, token, "create_session", func(ctx context.Context, p *payment.Payment, provider providers.Provider) error {
		var err error
		session, err = provider.CreateSession(ctx, p)
		return err
	})
	if p == nil {
		return nil, err
	}
	return &CheckoutResult{Payment: p, Session: session}, err
}

// ProcessNotification hands an inbound gateway callback to the provider of
// the payment. The variant in the callback URL must match the payment's.
// Callbacks bypass the circuit breaker: the gateway is owed an
// acknowledgment even while outbound calls to it are being refused.
func (s *PaymentService) ProcessNotification(ctx context.Context, variant payment.Variant, token string, r *http.Request) (providers.Ack, error) {
	ack := providers.OK
	_, err := s.mutateWith(ctx, token, "notification", false, func(ctx context.Context, p *payment.Payment, provider providers.Provider) error {
		if p.Variant != variant {
			return domainErrors.NewDomainError(
				"variant_mismatch",
				fmt.Sprintf("payment %s belongs to %s, not %s", p.Token, p.Variant, variant),
				domainErrors.ErrVariantMismatch,
			)
		}
		var err error
		ack, err = provider.HandleNotification(ctx, p, r)
		return err
	})
	return ack, err
}

// RefreshStatus asks the gateway for the payment's final status.
func (s *PaymentService) RefreshStatus(ctx context.Context, token string) (*RefreshResult, error) {
	var remote map[string]any
	p, err := s.mutate(ctx, token, "refresh_status", func(ctx context.Context, p *payment.Payment, provider providers.Provider) error {
		var err error
		remote, err = provider.RefreshStatus(ctx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &RefreshResult{Payment: p, Remote: remote}, nil
}

// RefundPayment refunds amount of a confirmed payment. Zero refunds the total.
func (s *PaymentService) RefundPayment(ctx context.Context, token string, amount int64) (*RefundResult, error) {
	var refunded int64
	p, err := s.mutate(ctx, token, "refund", func(ctx context.Context, p *payment.Payment, provider providers.Provider) error {
		var err error
		refunded, err = provider.Refund(ctx, p, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RefundedAmount.WithLabelValues(string(p.Variant), p.Currency).Add(float64(refunded))
	return &RefundResult{Payment: p, RefundedAmount: refunded}, nil
}

// CapturePayment captures a pre-authorised payment.
func (s *PaymentService) CapturePayment(ctx context.Context, token string, amount int64) (*payment.Payment, int64, error) {
	var captured int64
	p, err := s.mutate(ctx, token, "capture", func(ctx context.Context, p *payment.Payment, provider providers.Provider) error {
		var err error
		captured, err = provider.Capture(ctx, p, amount)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return p, captured, nil
}

// ReleasePayment releases a pre-authorised payment.
func (s *PaymentService) ReleasePayment(ctx context.Context, token string) (*payment.Payment, error) {
	p, err := s.mutate(ctx, token, "release", func(ctx context.Context, p *payment.Payment, provider providers.Provider) error {
		return provider.Release(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

type providerOp func(ctx context.Context, p *payment.Payment, provider providers.Provider) error

// mutate loads the payment under a row lock, runs op against its provider
// through the breaker and persists the record. The payment is returned
// alongside op's error once it has been persisted.
func (s *PaymentService) mutate(ctx context.Context, token, operation string, op providerOp) (*payment.Payment, error) {
	return s.mutateWith(ctx, token, operation, true, op)
}

func (s *PaymentService) mutateWith(ctx context.Context, token, operation string, guarded bool, op providerOp) (*payment.Payment, error) {
	var (
		p     *payment.Payment
		from  payment.Status
		opErr error
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		p, err = s.paymentRepo.GetByTokenForUpdate(txCtx, token)
		if err != nil {
			return err
		}
		from = p.Status

		provider, breaker, err := s.providerFactory.Get(p.Variant)
		if err != nil {
			return err
		}
		if !guarded {
			breaker = nil
		}

		logger := observability.WithPayment(*zerolog.Ctx(ctx), p.Token, string(p.Variant))
		opErr = s.call(logger.WithContext(txCtx), p, operation, breaker, func(ctx context.Context) error {
			return op(ctx, p, provider)
		})

		if err := s.paymentRepo.Update(txCtx, p); err != nil {
			return err
		}
		if p.Status == from {
			return nil
		}
		return s.paymentRepo.AddEvent(txCtx, payment.StatusChanged(p, operation, from))
	})
	if err != nil {
		return nil, err
	}

	if p.Status != from {
		s.metrics.StatusTransitions.WithLabelValues(string(p.Variant), string(from), string(p.Status)).Inc()
	}
	return p, opErr
}

// call runs fn through the provider's circuit breaker, when one is given,
// inside a span and records gateway metrics.
func (s *PaymentService) call(
	ctx context.Context,
	p *payment.Payment,
	operation string,
	breaker *gobreaker.CircuitBreaker[any],
	fn func(ctx context.Context) error,
) error {
	variant := string(p.Variant)
	ctx, span := s.tracer.Start(ctx, "gateway."+operation, trace.WithAttributes(
		attribute.String("payment.token", p.Token),
		attribute.String("payment.variant", variant),
	))
	defer span.End()

	start := time.Now()
	var err error
	if breaker != nil {
		_, err = breaker.Execute(func() (any, error) {
			return nil, fn(ctx)
		})
	} else {
		err = fn(ctx)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %s: %v", domainErrors.ErrProviderUnavailable, variant, err)
	}

	result := "success"
	switch {
	case err == nil:
	case domainErrors.IsPrecondition(err):
		result = "rejected"
	default:
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("payment.status", string(p.Status)))

	s.metrics.GatewayRequests.WithLabelValues(variant, operation, result).Inc()
	s.metrics.GatewayRequestDuration.WithLabelValues(variant, operation).Observe(time.Since(start).Seconds())

	if err != nil && result == "error" {
		zerolog.Ctx(ctx).Error().Err(err).Str("operation", operation).Msg("gateway operation failed")
	}
	return err
}
