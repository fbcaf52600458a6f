package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assetdesk/assetdesk/internal/app"
	"github.com/assetdesk/assetdesk/internal/orgaccess"
	"github.com/assetdesk/assetdesk/internal/platform/db"
	"github.com/assetdesk/assetdesk/internal/rbac"
	"github.com/assetdesk/assetdesk/internal/shared"
	"github.com/assetdesk/assetdesk/internal/users"
)

// services holds the services a command needs. Commands open it lazily so
// `--help` works without a database.
type services struct {
	cfg    *app.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
	roles  *rbac.Service
	users  *users.Service
	orgs   *orgaccess.Service
}

func openRuntime(ctx context.Context, stderr io.Writer) (*services, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	audit := shared.NewAuditLogger(pool)
	return &services{
		cfg:    cfg,
		logger: logger,
		pool:   pool,
		roles:  rbac.NewService(rbac.NewRepository(pool), audit, logger),
		users:  users.NewService(users.NewRepository(pool), audit, logger),
		orgs:   orgaccess.NewService(orgaccess.NewRepository(pool), audit, logger),
	}, nil
}

func (r *services) redisOpts() asynq.RedisClientOpt {
	return r.cfg.Redis().Asynq()
}

func (r *services) Close() {
	if r != nil && r.pool != nil {
		r.pool.Close()
	}
}
