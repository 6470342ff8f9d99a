package retry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts uint) Config {
	return Config{
		Attempts:     attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestWaitReady_SucceedsAfterFailures(t *testing.T) {
	var buf bytes.Buffer
	var calls int

	err := WaitReady(context.Background(), "postgres", fastConfig(5), zerolog.New(&buf), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"dependency":"postgres"`)
	assert.Contains(t, lines[0], `"attempt":1`)
	assert.Contains(t, lines[1], `"attempt":2`)
}

func TestWaitReady_ReturnsLastError(t *testing.T) {
	var calls int
	err := WaitReady(context.Background(), "redis", fastConfig(3), zerolog.Nop(), func(context.Context) error {
		calls++
		return errors.New("still down")
	})

	require.Error(t, err)
	assert.Equal(t, "redis not ready after 3 attempts: still down", err.Error())
	assert.Equal(t, 3, calls)
}

func TestWaitReady_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int
	err := WaitReady(ctx, "redis", fastConfig(5), zerolog.Nop(), func(context.Context) error {
		calls++
		return errors.New("down")
	})

	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestWaitReady_PingTimeout(t *testing.T) {
	cfg := fastConfig(1)
	cfg.PingTimeout = 10 * time.Millisecond

	err := WaitReady(context.Background(), "postgres", cfg, zerolog.Nop(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConfig_WithAttempts(t *testing.T) {
	cfg := DefaultConfig().WithAttempts(10, 2*time.Second)
	assert.Equal(t, uint(10), cfg.Attempts)
	assert.Equal(t, 2*time.Second, cfg.InitialDelay)

	unchanged := DefaultConfig().WithAttempts(0, 0)
	assert.Equal(t, DefaultConfig(), unchanged)
}
