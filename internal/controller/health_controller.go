package controller

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type healthCheck struct {
	name string
	ping func(ctx context.Context) error
}

type HealthController struct {
	checks []healthCheck
}

// NewHealthController checks the database and, when given, Redis.
func NewHealthController(pool *pgxpool.Pool, rdb *redis.Client) *HealthController {
	h := &HealthController{}
	if pool != nil {
		h.checks = append(h.checks, healthCheck{name: "database", ping: pool.Ping})
	}
	if rdb != nil {
		h.checks = append(h.checks, healthCheck{name: "redis", ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	return h
}

func (h *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthController) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Readiness pings every dependency concurrently.
func (h *HealthController) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range h.checks {
		c := c
		g.Go(func() error {
			if err := c.ping(gctx); err != nil {
				return fmt.Errorf("%s unavailable", c.name)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
