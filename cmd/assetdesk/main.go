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

	"github.com/assetdesk/assetdesk/internal/app"
	"github.com/assetdesk/assetdesk/internal/auth"
	"github.com/assetdesk/assetdesk/internal/devices"
	jobmetrics "github.com/assetdesk/assetdesk/internal/jobs"
	"github.com/assetdesk/assetdesk/internal/observability"
	"github.com/assetdesk/assetdesk/internal/orgaccess"
	"github.com/assetdesk/assetdesk/internal/platform/cache"
	"github.com/assetdesk/assetdesk/internal/platform/db"
	"github.com/assetdesk/assetdesk/internal/rbac"
	"github.com/assetdesk/assetdesk/internal/roles"
	"github.com/assetdesk/assetdesk/internal/shared"
	"github.com/assetdesk/assetdesk/internal/users"
	"github.com/assetdesk/assetdesk/jobs"
)

const sessionCookieName = "assetdesk_session"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
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

	redisOpts := cfg.Redis().Asynq()
	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	sessionManager := shared.NewSessionManager(redisClient, sessionCookieName, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(pool)

	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	rbacService := rbac.NewService(rbac.NewRepository(pool), auditLogger, logger)
	rbacService.SetSnapshotStore(rbac.NewRedisSnapshotStore(redisClient, cfg.PermissionSnapshotTTL))
	rbacService.SetSnapshotRecorder(metrics)
	rbacService.SetNotifier(jobs.NewSnapshotNotifier(jobClient, logger, jobMetrics))
	gate := rbac.NewGate(rbacService, metrics, logger)
	rbacMiddleware := rbac.NewMiddleware(gate, logger)

	userService := users.NewService(users.NewRepository(pool), auditLogger, logger)
	result, err := rbac.Bootstrapper{
		Service:  rbacService,
		Accounts: userService,
		Options:  cfg.BootstrapOptions(),
		Logger:   logger,
	}.Run(ctx)
	if err != nil {
		logger.Error("bootstrap roles", slog.Any("error", err))
		os.Exit(1)
	}
	if !result.Skipped {
		logger.Info("bootstrap complete", slog.Int64("admin_user_id", result.AdminUserID))
	}

	authService := auth.NewService(auth.NewRepository(pool))
	orgService := orgaccess.NewService(orgaccess.NewRepository(pool), auditLogger, logger)
	deviceService := devices.NewService(devices.NewRepository(pool), orgService, auditLogger, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		SessionManager:      sessionManager,
		CSRFManager:         csrfManager,
		RBACMiddleware:      rbacMiddleware,
		AuthHandler:         auth.NewHandler(logger, authService, rbacService, sessionManager, csrfManager, rbacMiddleware),
		RolesHandler:        roles.NewHandler(logger, rbacService, rbacMiddleware),
		UsersHandler:        users.NewHandler(logger, userService, rbacService, rbacMiddleware),
		OrganizationHandler: orgaccess.NewHandler(logger, orgService, rbacMiddleware),
		DeviceHandler:       devices.NewHandler(logger, deviceService, rbacMiddleware),
		PermissionsHandler:  rbac.NewPermissionsHandler(logger, rbacMiddleware),
		JobHandler:          jobs.NewHandler(inspector, logger),
		Metrics:             metrics,
		ReadinessChecks: map[string]func(context.Context) error{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return cache.Ping(ctx, redisClient) },
		},
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: cfg.AppReadTimeout,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
