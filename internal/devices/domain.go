package devices

import (
	"context"
	"fmt"
	"time"

	"github.com/assetdesk/assetdesk/internal/orgaccess"
	"github.com/assetdesk/assetdesk/internal/platform/httpx"
	"github.com/assetdesk/assetdesk/internal/shared"
)

// ErrNotFound is returned for missing devices and for devices of
// organizations the caller cannot see.
var ErrNotFound = fmt.Errorf("devices: device not found: %w", httpx.ErrNotFound)

// Device is an inventory item optionally owned by an organization. Devices
// without an organization predate scoping and are visible to everyone.
type Device struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Kind           string    `json:"kind"`
	SerialNumber   string    `json:"serial_number"`
	Location       string    `json:"location"`
	OrganizationID *int64    `json:"organization_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// RepositoryPort abstracts device persistence. Every read is scoped.
type RepositoryPort interface {
	List(ctx context.Context, scope orgaccess.ScopeParams) ([]Device, error)
	Get(ctx context.Context, id int64, scope orgaccess.ScopeParams) (Device, error)
	Delete(ctx context.Context, id int64, scope orgaccess.ScopeParams) (bool, error)
}

// Scoper resolves the organization scope of a caller from the user store.
// *orgaccess.Service implements it.
type Scoper interface {
	Scope(ctx context.Context, userID int64, orgFilter *int64) (orgaccess.ScopeParams, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}
