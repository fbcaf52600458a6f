package users

import (
	"context"
	"fmt"
	"time"

	"github.com/assetdesk/assetdesk/internal/platform/httpx"
	"github.com/assetdesk/assetdesk/internal/shared"
)

var (
	// ErrNotFound indicates that a user does not exist.
	ErrNotFound = fmt.Errorf("users: user not found: %w", httpx.ErrNotFound)
	// ErrInvalidUser indicates invalid account input.
	ErrInvalidUser = fmt.Errorf("users: invalid user: %w", httpx.ErrValidation)
)

// User represents a user account for management.
type User struct {
	ID        int64       `json:"id"`
	Username  string      `json:"username"`
	Tier      shared.Tier `json:"tier"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	// UpsertUser inserts the account unless the username is taken and
	// returns the id of the (new or existing) row. Existing rows keep their
	// password and tier.
	UpsertUser(ctx context.Context, username, passwordHash string, tier shared.Tier) (int64, bool, error)
}
