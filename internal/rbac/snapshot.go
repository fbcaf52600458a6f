package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKeyPrefix = "rbac:snapshot:"

// RedisSnapshotStore keeps per-user permission snapshots in Redis. The
// snapshot drives display decisions only.
type RedisSnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotStore constructs the store.
func NewRedisSnapshotStore(client *redis.Client, ttl time.Duration) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, ttl: ttl}
}

// Get returns the cached snapshot and whether one was present.
func (s *RedisSnapshotStore) Get(ctx context.Context, userID int64) (PermissionSet, bool, error) {
	raw, err := s.client.Get(ctx, snapshotKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("rbac: get snapshot: %w", err)
	}
	var tokens []string
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, false, fmt.Errorf("rbac: decode snapshot: %w", err)
	}
	perms := make(PermissionSet, len(tokens))
	for _, token := range tokens {
		if p, ok := ParsePermission(token); ok {
			perms[p] = struct{}{}
		}
	}
	return perms, true, nil
}

// Put replaces the snapshot of a user.
func (s *RedisSnapshotStore) Put(ctx context.Context, userID int64, perms PermissionSet) error {
	raw, err := json.Marshal(perms.Strings())
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, snapshotKey(userID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("rbac: put snapshot: %w", err)
	}
	return nil
}

// Invalidate drops the snapshots of the given users.
func (s *RedisSnapshotStore) Invalidate(ctx context.Context, userIDs ...int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = snapshotKey(id)
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("rbac: invalidate snapshots: %w", err)
	}
	return nil
}

func snapshotKey(userID int64) string {
	return snapshotKeyPrefix + strconv.FormatInt(userID, 10)
}
