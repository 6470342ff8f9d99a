package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/cassiomorais/pagoscl/internal/infrastructure/config"
	"github.com/cassiomorais/pagoscl/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/pagoscl/internal/infrastructure/redis"
	"github.com/cassiomorais/pagoscl/internal/providers"
	"github.com/cassiomorais/pagoscl/internal/repository/postgres"
	"github.com/cassiomorais/pagoscl/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App holds the wired dependencies shared by the commands.
type App struct {
	Config          *config.Config
	Logger          zerolog.Logger
	Pool            *pgxpool.Pool
	Redis           *redis.Client
	Metrics         *observability.Metrics
	Registry        *prometheus.Registry
	Factory         *providers.Factory
	PaymentService  *service.PaymentService
	IdempotencyRepo *postgres.IdempotencyRepository

	shutdownTracer func(context.Context) error
}

func New(ctx context.Context, serviceName string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, serviceName, os.Stdout)
	logger.Info().Msg("Starting")

	app := &App{Config: cfg, Logger: logger}

	if cfg.Observability.EnableTracing {
		shutdown, err := observability.InitTracer(cfg.Observability.ServiceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.shutdownTracer = shutdown
			logger.Info().Msg("Tracing enabled")
		}
	}

	app.Registry = prometheus.NewRegistry()
	app.Metrics = observability.NewMetrics("pagoscl", app.Registry)

	app.Pool, err = postgres.NewPool(ctx, &cfg.Database, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	var opts []service.Option
	if cfg.Redis.Enabled {
		app.Redis, err = infraRedis.NewClient(ctx, &cfg.Redis, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Msg("Connected to Redis")
		opts = append(opts, service.WithLocker(infraRedis.NewLocker(app.Redis), cfg.Payment.LockTTL))
	}

	app.Factory = NewFactory(cfg, logger, app.Metrics)
	logger.Info().Strs("gateways", app.Factory.Names()).Msg("Gateways registered")

	app.IdempotencyRepo = postgres.NewIdempotencyRepository(app.Pool)
	app.PaymentService = service.NewPaymentService(
		postgres.NewPaymentRepository(app.Pool),
		postgres.NewTxManager(app.Pool),
		app.Factory,
		app.Metrics,
		cfg.Server.BaseURL,
		opts...,
	)

	return app, nil
}

// Close releases the connections held by the app. It is safe on a partially
// built App.
func (a *App) Close() {
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(context.Background()); err != nil {
			a.Logger.Warn().Err(err).Msg("Tracer shutdown failed")
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
