package providers

import (
	"errors"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/pagoscl/internal/domain/errors"
	"github.com/cassiomorais/pagoscl/internal/domain/payment"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFactory_Empty(t *testing.T) {
	factory := NewFactory()

	assert.NotNil(t, factory)
	assert.Empty(t, factory.providers)
	assert.Empty(t, factory.circuitBreakers)
	assert.Equal(t, DefaultBreakerSettings(), factory.settings)
}

func TestFactory_Register(t *testing.T) {
	factory := NewFactory()
	factory.Register(NewDummyProvider())

	assert.Contains(t, factory.providers, "dummy")
	assert.Contains(t, factory.circuitBreakers, "dummy")

	provider, breaker, err := factory.Get(payment.VariantDummy)
	require.NoError(t, err)
	assert.Equal(t, "dummy", provider.Name())
	assert.NotNil(t, breaker)
	assert.Equal(t, gobreaker.StateClosed, breaker.State())
}

func TestFactory_Get_UnknownProvider_Error(t *testing.T) {
	factory := NewFactory()

	provider, breaker, err := factory.Get(payment.Variant("unknown"))
	assert.ErrorIs(t, err, domainErrors.ErrProviderNotFound)
	assert.Nil(t, provider)
	assert.Nil(t, breaker)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestFactory_Names(t *testing.T) {
	factory := NewFactory()
	factory.Register(NewDummyProvider())
	factory.Register(&namedProvider{DummyProvider: NewDummyProvider(), name: "flow"})

	assert.Equal(t, []string{"dummy", "flow"}, factory.Names())
}

func TestFactory_BreakerTripsOnGatewayFailures(t *testing.T) {
	var transitions []gobreaker.State
	factory := NewFactory(
		WithBreakerSettings(BreakerSettings{MaxRequests: 1, Timeout: time.Minute, MinRequests: 3, FailureRate: 0.5}),
		WithStateChange(func(_ string, _, to gobreaker.State) { transitions = append(transitions, to) }),
	)
	factory.Register(NewDummyProvider())

	_, breaker, err := factory.Get(payment.VariantDummy)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _ = breaker.Execute(func() (any, error) {
			return nil, domainErrors.ErrGatewayRequest
		})
	}

	assert.Equal(t, gobreaker.StateOpen, breaker.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)

	_, err = breaker.Execute(func() (any, error) { return nil, nil })
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
}

func TestFactory_BreakerIgnoresPreconditionErrors(t *testing.T) {
	factory := NewFactory(
		WithBreakerSettings(BreakerSettings{MaxRequests: 1, Timeout: time.Minute, MinRequests: 3, FailureRate: 0.5}),
	)
	factory.Register(NewDummyProvider())
	_, breaker, _ := factory.Get(payment.VariantDummy)

	for i := 0; i < 5; i++ {
		_, err := breaker.Execute(func() (any, error) {
			return nil, domainErrors.ErrRefundNotPermitted
		})
		assert.ErrorIs(t, err, domainErrors.ErrRefundNotPermitted)
	}

	assert.Equal(t, gobreaker.StateClosed, breaker.State())
}

type namedProvider struct {
	*DummyProvider
	name string
}

func (p *namedProvider) Name() string { return p.name }
