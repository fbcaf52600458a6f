// Package pgtest starts a disposable PostgreSQL for repository tests and
// loads the table layout the repositories expect.
package pgtest

import (
	"context"
	_ "embed"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

//go:embed schema.sql
var Schema string

// Tables lists every table in Schema, children first.
var Tables = []string{
	"audit_logs",
	"devices",
	"user_organizations",
	"organizations",
	"roles_to_user",
	"roles_to_permissions",
	"roles",
	"user_sessions",
	"users",
}

// Start runs a postgres container, applies Schema and returns a pool. The
// test is skipped in -short mode or when no container runtime is available.
// The container is terminated when the test finishes.
func Start(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("assetdesk_test"),
		postgres.WithUsername("assetdesk"),
		postgres.WithPassword("assetdesk"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, Schema)
	require.NoError(t, err)
	return pool
}

// Reset truncates every table and restarts identities.
func Reset(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	for _, table := range Tables {
		_, err := pool.Exec(context.Background(), "TRUNCATE "+table+" RESTART IDENTITY CASCADE")
		require.NoError(t, err)
	}
}
