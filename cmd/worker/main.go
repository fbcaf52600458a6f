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

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/assetdesk/assetdesk/internal/app"
	"github.com/assetdesk/assetdesk/internal/auth"
	jobmetrics "github.com/assetdesk/assetdesk/internal/jobs"
	"github.com/assetdesk/assetdesk/internal/platform/cache"
	"github.com/assetdesk/assetdesk/internal/platform/db"
	"github.com/assetdesk/assetdesk/internal/rbac"
	"github.com/assetdesk/assetdesk/internal/shared"
	"github.com/assetdesk/assetdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)

	// The worker never enqueues follow-up refreshes, so the notifier stays unset.
	rbacService := rbac.NewService(rbac.NewRepository(pool), shared.NewAuditLogger(pool), logger)
	rbacService.SetSnapshotStore(rbac.NewRedisSnapshotStore(redisClient, cfg.PermissionSnapshotTTL))

	refreshJob := jobs.NewSnapshotRefreshJob(rbacService, logger, metrics)
	pruneJob := jobs.NewSessionPruneJob(auth.NewRepository(pool), logger, metrics)

	redisOpts := cfg.Redis().Asynq()
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSnapshotRefresh, Handler: refreshJob.Handle},
			{Type: jobs.TaskSessionPrune, Handler: pruneJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SessionPruneCron, Task: jobs.NewSessionPruneTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
