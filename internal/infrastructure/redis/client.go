package redis

import (
	"context"
	"time"

	"github.com/cassiomorais/pagoscl/internal/infrastructure/config"
	"github.com/cassiomorais/pagoscl/pkg/retry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewClient creates a Redis client and waits until it answers PING.
func NewClient(ctx context.Context, cfg *config.RedisConfig, logger zerolog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	rc := retry.DefaultConfig().WithAttempts(cfg.ConnectRetries, cfg.ConnectRetryDelay)
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := retry.WaitReady(ctx, "redis", rc, logger.With().Str("addr", cfg.RedisAddr()).Logger(), ping); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}
