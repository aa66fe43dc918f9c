package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/mirador-hq/mirador/internal/app"
	"github.com/mirador-hq/mirador/internal/billing"
	"github.com/mirador-hq/mirador/internal/fxrate"
	"github.com/mirador-hq/mirador/internal/platform/cache"
	"github.com/mirador-hq/mirador/internal/platform/db"
	"github.com/mirador-hq/mirador/internal/registry"
	"github.com/mirador-hq/mirador/internal/reports"
	"github.com/mirador-hq/mirador/internal/shared"
	"github.com/mirador-hq/mirador/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	resolver, err := fxrate.NewResolver(fxrate.ResolverConfig{
		Source:       fxrate.NewHTTPSource(cfg.FXSourceURL),
		Repository:   fxrate.NewPgRepository(pool),
		Cache:        fxrate.NewRateCache(redisClient, cfg.FXCacheTTL),
		Cutover:      cfg.FXCutover,
		FetchTimeout: cfg.FXFetchTimeout,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("init fx resolver", slog.Any("error", err))
		os.Exit(1)
	}

	masterData := registry.NewPgRegistry(pool)
	auditSink := shared.NewAuditLogger(pool)

	billingService := billing.NewService(billing.NewPgRepository(pool), masterData, masterData, resolver, auditSink, logger)
	reportsService := reports.NewService(reports.NewPgRepository(pool))

	sweepJob := billing.NewSweepJob(billingService, logger)
	refreshJob := reports.NewRefreshJob(reportsService, logger)

	refreshTask, err := jobs.NewReportRefreshTask(jobs.ReportRefreshPayload{})
	if err != nil {
		logger.Error("build refresh task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskOverdueSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskReportRefresh, Handler: refreshJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "10 0 * * *", Task: jobs.NewOverdueSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 * * * *", Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
