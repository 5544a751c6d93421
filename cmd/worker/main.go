package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/odyssey-erp/invoicing/internal/app"
	jobmetrics "github.com/odyssey-erp/invoicing/internal/jobs"
	"github.com/odyssey-erp/invoicing/internal/observability"
	"github.com/odyssey-erp/invoicing/internal/platform/cache"
	"github.com/odyssey-erp/invoicing/jobs"
)

const claimRetention = 30 * 24 * time.Hour

func main() {
	if app.InTestMode() {
		log.Info().Msg("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger := app.NewLogger(cfg).With().Str("service", "worker").Logger()
	metrics := observability.NewMetrics()

	deps, err := app.BuildDeps(ctx, app.DepsConfig{
		Config:     cfg,
		Logger:     logger,
		Registerer: metrics.Registerer(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("init dependencies")
		os.Exit(1)
	}
	defer deps.Close()

	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	handlers := jobs.InvoiceHandlers{
		Executor: deps.Service,
		Claims:   deps.Idempotency,
		Metrics:  jobMetrics,
		Logger:   logger,
	}
	cleanup := jobs.ClaimsCleanup{
		Purger:    deps.Idempotency,
		Retention: claimRetention,
		Metrics:   jobMetrics,
		Logger:    logger,
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cache.AsynqOpt(cache.Options{Addr: cfg.RedisAddr}),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    append(handlers.Handlers(), cleanup.Handler()),
		Cron:        []jobs.CronRegistration{cleanup.Cron()},
	})
	if err != nil {
		logger.Error().Err(err).Msg("init worker")
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadTimeout: 5 * time.Second}
	go func() {
		if err := app.Serve(ctx, metricsServer, logger); err != nil {
			logger.Warn().Err(err).Msg("worker metrics server")
		}
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker run")
		os.Exit(1)
	}
}
