//go:build integration

package users

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/assetdesk/assetdesk/internal/shared"
	"github.com/assetdesk/assetdesk/internal/testing/pgtest"
)

func TestUsersAgainstPostgres(t *testing.T) {
	pool := pgtest.Start(t)
	ctx := context.Background()
	svc := NewService(NewRepository(pool), shared.NewAuditLogger(pool), nil)
	svc.SetHashCost(bcrypt.MinCost)

	id, err := svc.EnsureUser(ctx, "admin", "s3cret-pass", shared.TierAdmin)
	require.NoError(t, err)
	again, err := svc.EnsureUser(ctx, "admin", "different-pass", shared.TierStandard)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	user, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, shared.TierAdmin, user.Tier)
	assert.True(t, user.IsActive)

	var hash string
	require.NoError(t, pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1`, id).Scan(&hash))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret-pass")))

	_, err = svc.Get(ctx, id+1000)
	assert.ErrorIs(t, err, ErrNotFound)

	var audits int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM audit_logs WHERE action = 'user.create'`).Scan(&audits))
	assert.Equal(t, 1, audits)
}

func TestEnsureUserConcurrent(t *testing.T) {
	pool := pgtest.Start(t)
	ctx := context.Background()
	svc := NewService(NewRepository(pool), nil, nil)
	svc.SetHashCost(bcrypt.MinCost)

	ids := make([]int64, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := svc.EnsureUser(ctx, "racer", "s3cret-pass", shared.TierStandard)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
