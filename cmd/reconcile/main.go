package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/pagoscl/internal/bootstrap"
	"github.com/cassiomorais/pagoscl/internal/domain/payment"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		variant     string
		concurrency int
		timeout     time.Duration
	)
	flag.StringVar(&variant, "variant", "", "Only reconcile payments of this gateway")
	flag.IntVar(&concurrency, "concurrency", 0, "Gateway calls in flight (default payment.reconcile_concurrency)")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "Abort the run after this long")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	app, err := bootstrap.New(ctx, "pagoscl-reconcile")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		return 1
	}
	defer app.Close()

	if concurrency <= 0 {
		concurrency = app.Config.Payment.ReconcileConcurrency
	}
	var only *payment.Variant
	if variant != "" {
		v := payment.Variant(variant)
		if _, _, err := app.Factory.Get(v); err != nil {
			app.Logger.Error().Err(err).Msg("Cannot reconcile")
			return 2
		}
		only = &v
	}

	ctx = app.Logger.WithContext(ctx)
	report, err := app.PaymentService.Reconcile(ctx, only, concurrency)
	logEvent := app.Logger.Info()
	if err != nil {
		logEvent = app.Logger.Error().Err(err)
	}
	logEvent.
		Int("checked", report.Checked).
		Int("changed", report.Changed).
		Int("failed", report.Failed).
		Msg("Reconcile finished")

	if purged, err := app.IdempotencyRepo.Cleanup(ctx); err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to purge expired idempotency keys")
	} else {
		app.Logger.Info().Int64("purged", purged).Msg("Expired idempotency keys purged")
	}

	if err != nil || report.Failed > 0 {
		return 1
	}
	return 0
}
