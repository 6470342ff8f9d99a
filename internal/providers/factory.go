package providers

import (
	"fmt"
	"sort"
	"time"

	domainErrors "github.com/cassiomorais/pagoscl/internal/domain/errors"
	"github.com/cassiomorais/pagoscl/internal/domain/payment"
	"github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the circuit breaker created for every provider.
type BreakerSettings struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MinRequests uint32
	FailureRate float64
}

// DefaultBreakerSettings returns the breaker settings used when none are given.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		MinRequests: 10,
		FailureRate: 0.6,
	}
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithBreakerSettings overrides the default breaker settings.
func WithBreakerSettings(s BreakerSettings) FactoryOption {
	return func(f *Factory) { f.settings = s }
}

// WithStateChange registers a callback for breaker state changes.
func WithStateChange(fn func(name string, from, to gobreaker.State)) FactoryOption {
	return func(f *Factory) { f.onStateChange = fn }
}

// Factory holds the registered providers, each behind its own circuit breaker.
type Factory struct {
	providers       map[string]Provider
	circuitBreakers map[string]*gobreaker.CircuitBreaker[any]
	settings        BreakerSettings
	onStateChange   func(name string, from, to gobreaker.State)
}

// NewFactory creates a provider factory with the given options.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		providers:       make(map[string]Provider),
		circuitBreakers: make(map[string]*gobreaker.CircuitBreaker[any]),
		settings:        DefaultBreakerSettings(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Register registers a provider and creates a circuit breaker for it.
func (f *Factory) Register(p Provider) {
	s := f.settings
	f.providers[p.Name()] = p
	f.circuitBreakers[p.Name()] = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= s.MinRequests && failureRatio >= s.FailureRate
		},
		// Refusals decided before reaching the gateway say nothing about its health.
		IsSuccessful: func(err error) bool {
			return err == nil || domainErrors.IsPrecondition(err)
		},
		OnStateChange: f.onStateChange,
	})
}

// Get returns the provider and its circuit breaker for the given variant.
func (f *Factory) Get(name payment.Variant) (Provider, *gobreaker.CircuitBreaker[any], error) {
	p, ok := f.providers[string(name)]
	if !ok {
		return nil, nil, fmt.Errorf("unknown provider %q: %w", name, domainErrors.ErrProviderNotFound)
	}
	return p, f.circuitBreakers[string(name)], nil
}

// Names lists the registered variants in alphabetical order.
func (f *Factory) Names() []string {
	names := make([]string, 0, len(f.providers))
	for name := range f.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
