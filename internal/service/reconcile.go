package service

import (
	"context"
	"sync"

	"github.com/cassiomorais/pagoscl/internal/domain/payment"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const reconcilePageSize = 100

// Reconcile refreshes every waiting payment, optionally of a single variant,
// with at most concurrency gateway calls in flight. A failed refresh is
// logged and counted; it does not stop the run.
func (s *PaymentService) Reconcile(ctx context.Context, variant *payment.Variant, concurrency int) (ReconcileReport, error) {
	pending, err := s.waitingPayments(ctx, variant)
	if err != nil {
		return ReconcileReport{}, err
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	var (
		mu     sync.Mutex
		report = ReconcileReport{Checked: len(pending)}
	)
	logger := zerolog.Ctx(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, w := range pending {
		w := w
		g.Go(func() error {
			res, err := s.RefreshStatus(gctx, w.token)
			label := string(w.variant)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				logger.Warn().Err(err).Str("token", w.token).Msg("reconcile refresh failed")
				s.metrics.ReconcileRuns.WithLabelValues(label, "failed").Inc()
			case res.Payment.Status != payment.StatusWaiting:
				report.Changed++
				logger.Info().Str("token", w.token).Str("status", string(res.Payment.Status)).Msg("payment reconciled")
				s.metrics.ReconcileRuns.WithLabelValues(label, "changed").Inc()
			default:
				s.metrics.ReconcileRuns.WithLabelValues(label, "unchanged").Inc()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, ctx.Err()
}

type waiting struct {
	token   string
	variant payment.Variant
}

// waitingPayments pages through the waiting payments before any of them is
// refreshed, so status changes during the run cannot shift the pages.
func (s *PaymentService) waitingPayments(ctx context.Context, variant *payment.Variant) ([]waiting, error) {
	status := payment.StatusWaiting
	seen := make(map[string]struct{})
	var pending []waiting

	for offset := 0; ; offset += reconcilePageSize {
		page, err := s.paymentRepo.List(ctx, payment.ListFilter{
			Status:    &status,
			Variant:   variant,
			Limit:     reconcilePageSize,
			Offset:    offset,
			SortBy:    "created_at",
			SortOrder: "asc",
		})
		if err != nil {
			return nil, err
		}
		for _, p := range page {
			if _, dup := seen[p.Token]; dup {
				continue
			}
			seen[p.Token] = struct{}{}
			pending = append(pending, waiting{token: p.Token, variant: p.Variant})
		}
		if len(page) < reconcilePageSize {
			return pending, nil
		}
	}
}
