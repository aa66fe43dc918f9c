package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mirador-hq/mirador/internal/app"
	"github.com/mirador-hq/mirador/internal/billing"
	"github.com/mirador-hq/mirador/internal/fxrate"
	"github.com/mirador-hq/mirador/internal/platform/cache"
	"github.com/mirador-hq/mirador/internal/platform/db"
	"github.com/mirador-hq/mirador/internal/registry"
	"github.com/mirador-hq/mirador/internal/reports"
	"github.com/mirador-hq/mirador/internal/shared"
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

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		BillingHandler: billing.NewHandler(billingService),
		ReportsHandler: reports.NewHandler(reportsService),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
