package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/orderpay/internal/bootstrap"
	"github.com/cassiomorais/orderpay/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "orderpay-worker", "payments_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	deps, err := app.Deps()
	if err != nil {
		app.Logger.Error().Err(err).Msg("Failed to wire dependencies")
		return
	}

	payCfg := app.Config.Payment
	locker := app.Locker()
	if locker == nil {
		app.Logger.Warn().Msg("Redis disabled, sweep runs without a distributed lock")
	}
	sweeper := service.NewExpirySweeper(deps, locker, service.SweeperConfig{
		Interval:  payCfg.SweepInterval,
		BatchSize: payCfg.SweepBatchSize,
		LockTTL:   payCfg.SweepLockTTL,
	})

	app.Logger.Info().
		Dur("interval", payCfg.SweepInterval).
		Int("batch_size", payCfg.SweepBatchSize).
		Msg("Worker started, sweeping expired payments")

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Expiry sweep on its own ticker.
	g.Go(func() error {
		return sweeper.Run(gCtx)
	})

	// 2. Metrics endpoint.
	if app.Config.Observability.EnableMetrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", app.Config.Observability.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
