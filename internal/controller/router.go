package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/pagoscl/internal/infrastructure/config"
	"github.com/cassiomorais/pagoscl/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/pagoscl/internal/middleware"
	"github.com/cassiomorais/pagoscl/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	Pool             *pgxpool.Pool
	RedisClient      *redis.Client
	PaymentService   *service.PaymentService
	IdempotencyStore customMW.IdempotencyStore
	IdempotencyTTL   time.Duration
	Metrics          *observability.Metrics
	Gatherer         prometheus.Gatherer
	Logger           zerolog.Logger
	Server           config.ServerConfig
	JWTSecret        string
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(customMW.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.SecurityHeaders())
	r.Use(customMW.Metrics(deps.Metrics))
	if deps.Server.RateLimit > 0 {
		r.Use(customMW.RateLimit(deps.Server.RateLimit, time.Minute, "/payments/process/", "/health", "/metrics"))
	}

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	paymentH := NewPaymentController(deps.PaymentService)
	notificationH := NewNotificationController(deps.PaymentService)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Gateway-facing and user-facing routes
	r.Post("/payments/process/{variant}/{token}", notificationH.Process)
	r.Get("/payments/{token}/checkout", paymentH.Checkout)
	for _, path := range []string{"/payments/{token}/success", "/payments/{token}/failure"} {
		r.Get(path, paymentH.Summary)
		r.Post(path, paymentH.Summary)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if deps.JWTSecret != "" {
			r.Use(customMW.RequireAuth(deps.JWTSecret))
		}

		var idempotencyMW func(http.Handler) http.Handler = passThrough
		if deps.IdempotencyStore != nil {
			idempotencyMW = customMW.Idempotency(deps.IdempotencyStore, deps.IdempotencyTTL)
		}

		r.With(idempotencyMW).Post("/payments", paymentH.CreatePayment)
		r.Get("/payments", paymentH.ListPayments)
		r.Get("/payments/{token}", paymentH.GetPayment)
		r.Get("/payments/{token}/events", paymentH.ListEvents)
		r.Post("/payments/{token}/checkout", paymentH.StartCheckout)
		r.Post("/payments/{token}/refresh", paymentH.RefreshStatus)
		r.With(idempotencyMW).Post("/payments/{token}/refund", paymentH.RefundPayment)
		r.Post("/payments/{token}/capture", paymentH.CapturePayment)
		r.Post("/payments/{token}/release", paymentH.ReleasePayment)
	})

	return r
}

func passThrough(next http.Handler) http.Handler { return next }
