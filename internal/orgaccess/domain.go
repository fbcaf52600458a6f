package orgaccess

import (
	"context"
	"fmt"
	"time"

	"github.com/assetdesk/assetdesk/internal/platform/httpx"
	"github.com/assetdesk/assetdesk/internal/shared"
)

var (
	// ErrNotFound covers missing organizations and memberships as well as
	// organizations the caller may not see.
	ErrNotFound = fmt.Errorf("orgaccess: organization not found: %w", httpx.ErrNotFound)
	// ErrLastMembership refuses a self-revoke of the last membership.
	ErrLastMembership = fmt.Errorf("orgaccess: cannot remove your own last membership of an organization: %w", httpx.ErrIntegrity)
	// ErrInvalidOrganization indicates invalid organization input.
	ErrInvalidOrganization = fmt.Errorf("orgaccess: invalid organization: %w", httpx.ErrValidation)
)

// Organization is a tenant-like scoping entity.
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	LegalType string    `json:"legal_type,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership grants one user visibility into one organization.
type Membership struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	Username       string    `json:"username"`
	OrganizationID int64     `json:"organization_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// RepositoryPort abstracts organization persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	UserTier(ctx context.Context, userID int64) (shared.Tier, bool, error)
	OrganizationExists(ctx context.Context, orgID int64) (bool, error)
	MembershipExists(ctx context.Context, userID, orgID int64) (bool, error)
	GetOrganization(ctx context.Context, orgID int64) (Organization, error)
	ListOrganizations(ctx context.Context) ([]Organization, error)
	ListUserOrganizations(ctx context.Context, userID int64) ([]Organization, error)
	ListMembers(ctx context.Context, orgID int64) ([]Membership, error)
}

// TxRepository exposes the writes that must run inside a transaction.
type TxRepository interface {
	InsertOrganization(ctx context.Context, org Organization) (Organization, error)
	InsertMembership(ctx context.Context, userID, orgID int64) (bool, error)
	LockMemberships(ctx context.Context, orgID int64) ([]int64, error)
	DeleteMembership(ctx context.Context, userID, orgID int64) (bool, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}
