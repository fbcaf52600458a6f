package auth

import (
	"context"
	"time"

	"github.com/assetdesk/assetdesk/internal/rbac"
	"github.com/assetdesk/assetdesk/internal/shared"
)

// Account is the credential view of a user row.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	Tier         shared.Tier
	IsActive     bool
}

// Principal returns the request principal for the account.
func (a Account) Principal() shared.Principal {
	return shared.Principal{UserID: a.ID, Username: a.Username, Tier: a.Tier}
}

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*Account, error)
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// SnapshotSource primes and reads the UI permission snapshot.
// Satisfied by *rbac.Service.
type SnapshotSource interface {
	RefreshSnapshot(ctx context.Context, userID int64) (rbac.PermissionSet, error)
	Snapshot(ctx context.Context, userID int64) (rbac.PermissionSet, error)
}
