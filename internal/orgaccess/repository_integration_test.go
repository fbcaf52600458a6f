//go:build integration

package orgaccess

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetdesk/assetdesk/internal/shared"
	"github.com/assetdesk/assetdesk/internal/testing/pgtest"
)

func insertUser(t *testing.T, pool *pgxpool.Pool, username string, tier shared.Tier) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (username, password_hash, role) VALUES ($1, 'x', $2) RETURNING id`,
		username, tier.String()).Scan(&id)
	require.NoError(t, err)
	return id
}

func insertOrg(t *testing.T, pool *pgxpool.Pool, name string) int64 {
	t.Helper()
	var id int64
	require.NoError(t, pool.QueryRow(context.Background(),
		`INSERT INTO organizations (name) VALUES ($1) RETURNING id`, name).Scan(&id))
	return id
}

func insertDevice(t *testing.T, pool *pgxpool.Pool, name string, orgID *int64) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `INSERT INTO devices (name, organization_id) VALUES ($1, $2)`, name, orgID)
	require.NoError(t, err)
}

func scopedDeviceNames(t *testing.T, pool *pgxpool.Pool, params ScopeParams) []string {
	t.Helper()
	params.Alias = "d"
	query, args, err := BuildScopedQuery("SELECT d.name FROM devices d", params)
	require.NoError(t, err)
	rows, err := pool.Query(context.Background(), query+" ORDER BY d.name", args...)
	require.NoError(t, err)
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	require.NoError(t, err)
	return names
}

func TestOrganizationAccessAgainstPostgres(t *testing.T) {
	pool := pgtest.Start(t)
	ctx := context.Background()
	svc := NewService(NewRepository(pool), shared.NewAuditLogger(pool), nil)

	t.Run("scoped listing", func(t *testing.T) {
		pgtest.Reset(t, pool)
		u := insertUser(t, pool, "u", shared.TierStandard)
		lonely := insertUser(t, pool, "lonely", shared.TierStandard)
		mgr := insertUser(t, pool, "mgr", shared.TierManager)
		o1 := insertOrg(t, pool, "O1")
		o2 := insertOrg(t, pool, "O2")
		require.NoError(t, svc.GrantAccess(ctx, mgr, u, o1))

		insertDevice(t, pool, "legacy", nil)
		insertDevice(t, pool, "o1-laptop", &o1)
		insertDevice(t, pool, "o2-laptop", &o2)
		insertDevice(t, pool, "o2-printer", &o2)

		assert.Empty(t, scopedDeviceNames(t, pool, ScopeParams{UserID: u, OrganizationID: &o2}))
		assert.Equal(t, []string{"legacy", "o1-laptop"}, scopedDeviceNames(t, pool, ScopeParams{UserID: u}))
		assert.Equal(t, []string{"legacy"}, scopedDeviceNames(t, pool, ScopeParams{UserID: lonely}))
		assert.Equal(t, []string{"legacy", "o1-laptop", "o2-laptop", "o2-printer"},
			scopedDeviceNames(t, pool, ScopeParams{UserID: mgr, Tier: shared.TierManager}))
	})

	t.Run("grant twice keeps one row", func(t *testing.T) {
		pgtest.Reset(t, pool)
		u := insertUser(t, pool, "u", shared.TierStandard)
		o := insertOrg(t, pool, "O")
		require.NoError(t, svc.GrantAccess(ctx, u, u, o))
		require.NoError(t, svc.GrantAccess(ctx, u, u, o))

		var n int
		require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_organizations WHERE user_id = $1 AND organization_id = $2`, u, o).Scan(&n))
		assert.Equal(t, 1, n)

		assert.ErrorIs(t, svc.GrantAccess(ctx, u, 9999, o), ErrNotFound)
	})

	t.Run("elevated visibility and ordering", func(t *testing.T) {
		pgtest.Reset(t, pool)
		admin := insertUser(t, pool, "admin", shared.TierAdmin)
		insertOrg(t, pool, "Bravo")
		a := insertOrg(t, pool, "Alpha")

		orgs, err := svc.ListVisibleOrganizations(ctx, admin, true)
		require.NoError(t, err)
		require.Len(t, orgs, 2)
		assert.Equal(t, "Alpha", orgs[0].Name)

		ok, err := svc.HasAccess(ctx, admin, a)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = svc.HasAccess(ctx, 424242, a)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("self lockout guard", func(t *testing.T) {
		pgtest.Reset(t, pool)
		u := insertUser(t, pool, "u", shared.TierStandard)
		org, err := svc.CreateOrganization(ctx, u, Organization{Name: "Solo"})
		require.NoError(t, err)

		require.ErrorIs(t, svc.RevokeAccess(ctx, u, u, org.ID), ErrLastMembership)
		ok, err := svc.HasAccess(ctx, u, org.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("concurrent self revokes keep one member", func(t *testing.T) {
		pgtest.Reset(t, pool)
		a := insertUser(t, pool, "a", shared.TierStandard)
		b := insertUser(t, pool, "b", shared.TierStandard)
		org := insertOrg(t, pool, "Pair")
		require.NoError(t, svc.GrantAccess(ctx, a, a, org))
		require.NoError(t, svc.GrantAccess(ctx, b, b, org))

		var wg sync.WaitGroup
		for _, id := range []int64{a, b} {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				_ = svc.RevokeAccess(ctx, id, id, org)
			}(id)
		}
		wg.Wait()

		members, err := svc.ListMembers(ctx, org)
		require.NoError(t, err)
		assert.Len(t, members, 1)
	})
}
