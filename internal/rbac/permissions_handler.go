package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/assetdesk/assetdesk/internal/platform/httpx"
)

// PermissionsHandler lists the permission catalog.
type PermissionsHandler struct {
	logger *slog.Logger
	rbac   Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(RolesRead))
		r.Get("/", h.listPermissions)
	})
}

type permissionView struct {
	Token string `json:"token"`
	Label string `json:"label"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms := All()
	out := make([]permissionView, len(perms))
	for i, p := range perms {
		out[i] = permissionView{Token: string(p), Label: p.Label()}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}
