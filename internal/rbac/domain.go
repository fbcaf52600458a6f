package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/assetdesk/assetdesk/internal/platform/httpx"
	"github.com/assetdesk/assetdesk/internal/shared"
)

// NoID marks a role that has not been persisted yet. Zero is a valid id
// (the bootstrap SuperAdmin role) so unsaved roles use a negative value.
const NoID int64 = -1

// Built-in role names created by Bootstrapper.
const (
	SuperAdminRole = "SuperAdmin"
	ReaderRole     = "Reader"
)

const maxRoleNameLength = 100

var (
	// ErrNotFound indicates that a role does not exist.
	ErrNotFound = fmt.Errorf("rbac: role not found: %w", httpx.ErrNotFound)
	// ErrUnknownUser indicates a role assignment for a user that does not exist.
	ErrUnknownUser = fmt.Errorf("rbac: user not found: %w", httpx.ErrNotFound)
	// ErrConflict indicates that another role already uses the name.
	ErrConflict = fmt.Errorf("rbac: role name already exists: %w", httpx.ErrDuplicate)
	// ErrInvalidRole indicates invalid role input.
	ErrInvalidRole = fmt.Errorf("rbac: invalid role: %w", httpx.ErrValidation)
	// ErrUnauthenticated indicates that no principal is present.
	ErrUnauthenticated = fmt.Errorf("rbac: authentication required: %w", httpx.ErrUnauthorized)
	// ErrForbidden indicates that the principal lacks the required permissions.
	ErrForbidden = fmt.Errorf("rbac: insufficient permission: %w", httpx.ErrForbidden)
)

// Role is a named bundle of permissions.
type Role struct {
	ID          int64
	Name        string
	Description string
	Permissions PermissionSet
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewRole returns an unsaved role.
func NewRole(name, description string, perms ...Permission) Role {
	return Role{ID: NoID, Name: name, Description: description, Permissions: NewPermissionSet(perms...)}
}

// HasID reports whether the role carries an id.
func (r Role) HasID() bool {
	return r.ID >= 0
}

// RepositoryPort abstracts role persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CountRoles(ctx context.Context) (int, error)
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	UserRoleIDs(ctx context.Context, userID int64) ([]int64, error)
	UserIDsWithRole(ctx context.Context, roleID int64) ([]int64, error)
}

// TxRepository exposes the writes that must run inside a transaction.
type TxRepository interface {
	RoleNameTaken(ctx context.Context, name string, exceptID int64) (bool, error)
	InsertRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, perms []Permission) error
	DeleteRolePermissions(ctx context.Context, roleID int64) error
	DeleteRoleAssignments(ctx context.Context, roleID int64) ([]int64, error)
	DeleteRole(ctx context.Context, roleID int64) (bool, error)
	ExistingRoleIDs(ctx context.Context, ids []int64) ([]int64, error)
	ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// SnapshotStore caches the UI-only copy of a user's permissions.
type SnapshotStore interface {
	Get(ctx context.Context, userID int64) (PermissionSet, bool, error)
	Put(ctx context.Context, userID int64, perms PermissionSet) error
	Invalidate(ctx context.Context, userIDs ...int64) error
}

// SnapshotRecorder counts snapshot cache lookups.
type SnapshotRecorder interface {
	RecordSnapshotLookup(result string)
}

// Snapshot lookup results reported to the SnapshotRecorder.
const (
	SnapshotHit   = "hit"
	SnapshotMiss  = "miss"
	SnapshotError = "error"
)

// SnapshotNotifier schedules a snapshot refresh for users whose effective
// permissions may have changed.
type SnapshotNotifier interface {
	NotifyPermissionsChanged(ctx context.Context, userIDs ...int64) error
}
