package roles

import (
	"context"
	"time"

	"github.com/assetdesk/assetdesk/internal/rbac"
)

// Store is the role store used by the handler. Satisfied by *rbac.Service.
type Store interface {
	ListAll(ctx context.Context) ([]rbac.Role, error)
	FindByID(ctx context.Context, id int64) (rbac.Role, error)
	Save(ctx context.Context, role rbac.Role) (rbac.Role, error)
	Update(ctx context.Context, role rbac.Role) (rbac.Role, error)
	Remove(ctx context.Context, id int64) error
	UsersWithRole(ctx context.Context, roleID int64) ([]int64, error)
}

// RoleView is the JSON shape of a role.
type RoleView struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Permissions []string  `json:"permissions"`
	Users       []int64   `json:"users,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toView(role rbac.Role) RoleView {
	return RoleView{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		Permissions: role.Permissions.Strings(),
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

type roleInput struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description string   `json:"description" validate:"max=500"`
	Permissions []string `json:"permissions" validate:"dive,required"`
}

// toRole parses permission tokens. The second return lists unknown tokens.
func (in roleInput) toRole(id int64) (rbac.Role, []string) {
	role := rbac.Role{ID: id, Name: in.Name, Description: in.Description, Permissions: make(rbac.PermissionSet, len(in.Permissions))}
	var unknown []string
	for _, token := range in.Permissions {
		p, ok := rbac.ParsePermission(token)
		if !ok {
			unknown = append(unknown, token)
			continue
		}
		role.Permissions[p] = struct{}{}
	}
	return role, unknown
}
