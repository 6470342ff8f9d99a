package bootstrap

import (
	"github.com/cassiomorais/pagoscl/internal/domain/payment"
	"github.com/cassiomorais/pagoscl/internal/infrastructure/config"
	"github.com/cassiomorais/pagoscl/internal/infrastructure/observability"
	"github.com/cassiomorais/pagoscl/internal/providers"
	"github.com/cassiomorais/pagoscl/internal/providers/flow"
	"github.com/cassiomorais/pagoscl/internal/providers/khipu"
	"github.com/cassiomorais/pagoscl/internal/providers/payku"
	"github.com/rs/zerolog"
)

// NewFactory registers every enabled gateway behind its own circuit breaker.
func NewFactory(cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics) *providers.Factory {
	cb := cfg.Payment.CircuitBreaker
	f := providers.NewFactory(
		providers.WithBreakerSettings(providers.BreakerSettings{
			MaxRequests: cb.MaxRequests,
			Interval:    cb.Interval,
			Timeout:     cb.Timeout,
			MinRequests: cb.MinRequests,
			FailureRate: cb.FailureRate,
		}),
		providers.WithStateChange(metrics.BreakerStateChanged),
	)

	g := cfg.Gateways
	if g.Flow.Enabled {
		opts := []flow.Option{flow.WithLogger(logger)}
		if g.Flow.Timeout > 0 {
			opts = append(opts, flow.WithHTTPClient(providers.DefaultHTTPClient(g.Flow.Timeout)))
		}
		if g.Flow.PaymentMethod > 0 {
			opts = append(opts, flow.WithPaymentMethod(g.Flow.PaymentMethod))
		}
		f.Register(flow.New(g.Flow.Environment, g.Flow.APIKey, g.Flow.APISecret, opts...))
	}
	if g.Khipu.Enabled {
		opts := []khipu.Option{khipu.WithLogger(logger)}
		if g.Khipu.Timeout > 0 {
			opts = append(opts, khipu.WithHTTPClient(providers.DefaultHTTPClient(g.Khipu.Timeout)))
		}
		if g.Khipu.BankID != "" {
			opts = append(opts, khipu.WithBankID(g.Khipu.BankID))
		}
		f.Register(khipu.New(g.Khipu.Endpoint, g.Khipu.APIKey, opts...))
	}
	if g.Payku.Enabled {
		opts := []payku.Option{payku.WithLogger(logger)}
		if g.Payku.Timeout > 0 {
			opts = append(opts, payku.WithHTTPClient(providers.DefaultHTTPClient(g.Payku.Timeout)))
		}
		if g.Payku.PaymentCode > 0 {
			opts = append(opts, payku.WithPaymentCode(g.Payku.PaymentCode))
		}
		if g.Payku.Expiry > 0 {
			opts = append(opts, payku.WithExpiry(g.Payku.Expiry))
		}
		f.Register(payku.New(g.Payku.Site, g.Payku.PublicToken, g.Payku.PrivateToken, opts...))
	}
	if g.Dummy.Enabled {
		f.Register(providers.NewDummyProvider(
			providers.WithOutcome(payment.Status(g.Dummy.Outcome)),
			providers.WithLatency(g.Dummy.Latency),
			providers.WithFailureRate(g.Dummy.FailureRate),
		))
	}
	return f
}
