package roles

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/assetdesk/assetdesk/internal/platform/httpx"
	"github.com/assetdesk/assetdesk/internal/rbac"
)

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	store     Store
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, store Store, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, store: store, rbac: rbacMW, validator: validator.New()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(rbac.RolesRead))
		r.Get("/", h.listRoles)
		r.Get("/{id}", h.showRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(rbac.RolesManage))
		r.Post("/", h.createRole)
		r.Put("/{id}", h.updateRole)
		r.Delete("/{id}", h.deleteRole)
	})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListAll(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	out := make([]RoleView, len(roles))
	for i, role := range roles {
		out[i] = toView(role)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) showRole(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	role, err := h.store.FindByID(r.Context(), id)
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	users, err := h.store.UsersWithRole(r.Context(), id)
	if err != nil {
		h.fail(w, "list role holders", err)
		return
	}
	view := toView(role)
	view.Users = users
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	role, ok := h.decodeRole(w, r, rbac.NoID)
	if !ok {
		return
	}
	saved, err := h.store.Save(r.Context(), role)
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toView(saved))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	role, ok := h.decodeRole(w, r, id)
	if !ok {
		return
	}
	updated, err := h.store.Update(r.Context(), role)
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(updated))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	if err := h.store.Remove(r.Context(), id); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeRole(w http.ResponseWriter, r *http.Request, id int64) (rbac.Role, bool) {
	var in roleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return rbac.Role{}, false
	}
	if errs := h.validate(in); errs != nil {
		httpx.ValidationProblem(w, errs)
		return rbac.Role{}, false
	}
	role, unknown := in.toRole(id)
	if len(unknown) > 0 {
		httpx.ValidationProblem(w, map[string]string{"Permissions": "unknown: " + strings.Join(unknown, ",")})
		return rbac.Role{}, false
	}
	return role, true
}

func roleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 0 {
		httpx.RespondError(w, rbac.ErrNotFound)
		return 0, false
	}
	return id, true
}

func (h *Handler) validate(in any) map[string]string {
	err := h.validator.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return map[string]string{"general": err.Error()}
	}
	out := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrDuplicate) && !errors.Is(err, httpx.ErrValidation) {
		h.logger.Error("roles: "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
