package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/assetdesk/assetdesk/internal/platform/httpx"
	"github.com/assetdesk/assetdesk/internal/rbac"
)

// RoleAssigner reads and replaces the role assignments of a user.
// Satisfied by *rbac.Service.
type RoleAssigner interface {
	RolesForUser(ctx context.Context, userID int64) ([]rbac.Role, error)
	AssignRolesToUser(ctx context.Context, userID int64, roleIDs []int64) error
}

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	roles     RoleAssigner
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, roles RoleAssigner, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, roles: roles, rbac: rbacMW, validator: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(rbac.UsersRead))
		r.Get("/", h.listUsers)
		r.Get("/{id}/roles", h.listUserRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.UsersManage, rbac.RolesRead))
		r.Put("/{id}/roles", h.assignUserRoles)
	})
}

type assignRolesInput struct {
	RoleIDs []int64 `json:"role_ids" validate:"dive,gte=0"`
}

type roleRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) listUserRoles(w http.ResponseWriter, r *http.Request) {
	user, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	roles, err := h.roles.RolesForUser(r.Context(), user.ID)
	if err != nil {
		h.fail(w, "list user roles", err)
		return
	}
	refs := make([]roleRef, len(roles))
	for i, role := range roles {
		refs[i] = roleRef{ID: role.ID, Name: role.Name}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":     user.ID,
		"roles":       refs,
		"permissions": rbac.EffectivePermissions(roles).Strings(),
	})
}

func (h *Handler) assignUserRoles(w http.ResponseWriter, r *http.Request) {
	var in assignRolesInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if errs := h.validate(in); errs != nil {
		httpx.ValidationProblem(w, errs)
		return
	}
	user, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	if err := h.roles.AssignRolesToUser(r.Context(), user.ID, in.RoleIDs); err != nil {
		h.fail(w, "assign roles", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) loadUser(w http.ResponseWriter, r *http.Request) (User, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, ErrNotFound)
		return User{}, false
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get user", err)
		return User{}, false
	}
	return user, true
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
	if !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrValidation) {
		h.logger.Error("users: "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
