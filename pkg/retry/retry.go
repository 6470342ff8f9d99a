// Package retry waits for backing services to come up at start-up. Gateway
// calls are never retried.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
)

// Config bounds the wait.
type Config struct {
	Attempts     uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// PingTimeout caps each attempt. Zero leaves attempts bounded only by ctx.
	PingTimeout time.Duration
}

// DefaultConfig waits for roughly a minute with exponential backoff.
func DefaultConfig() Config {
	return Config{
		Attempts:     5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		PingTimeout:  5 * time.Second,
	}
}

// WithAttempts overrides Attempts and InitialDelay when they are positive.
func (c Config) WithAttempts(attempts int, delay time.Duration) Config {
	if attempts > 0 {
		c.Attempts = uint(attempts)
	}
	if delay > 0 {
		c.InitialDelay = delay
	}
	return c
}

// WaitReady calls ping until it succeeds, logging every failed attempt
// against the named dependency. The last ping error is returned.
func WaitReady(ctx context.Context, name string, cfg Config, logger zerolog.Logger, ping func(context.Context) error) error {
	attempt := func() error {
		pingCtx, cancel := ctx, context.CancelFunc(func() {})
		if cfg.PingTimeout > 0 {
			pingCtx, cancel = context.WithTimeout(ctx, cfg.PingTimeout)
		}
		defer cancel()
		return ping(pingCtx)
	}

	err := retry.Do(
		attempt,
		retry.Context(ctx),
		retry.Attempts(cfg.Attempts),
		retry.Delay(cfg.InitialDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn().Err(err).Str("dependency", name).Uint("attempt", n+1).Msg("dependency not ready")
		}),
	)
	if err != nil {
		return fmt.Errorf("%s not ready after %d attempts: %w", name, cfg.Attempts, err)
	}
	return nil
}
