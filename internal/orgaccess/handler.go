package orgaccess

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/assetdesk/assetdesk/internal/platform/httpx"
	"github.com/assetdesk/assetdesk/internal/rbac"
	"github.com/assetdesk/assetdesk/internal/shared"
)

// Handler exposes organization and membership routes.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	access    Middleware
	validator *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		rbac:      rbacMW,
		access:    NewMiddleware(service, logger),
		validator: validator.New(),
	}
}

// MountRoutes registers organization routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(rbac.OrganizationsRead))
		r.Get("/", h.listOrganizations)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(rbac.OrganizationsManage))
		r.Post("/", h.createOrganization)
	})
	r.Route("/{orgID}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequirePermission(rbac.OrganizationsRead))
			r.Use(h.access.RequireOrganizationAccess("orgID"))
			r.Get("/", h.showOrganization)
			r.Get("/members", h.listMembers)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequirePermission(rbac.OrganizationsManage))
			r.Use(h.access.RequireOrganizationAccess("orgID"))
			r.Post("/members", h.grantMember)
			r.Delete("/members/{userID}", h.revokeMember)
		})
	})
}

type createOrganizationInput struct {
	Name      string `json:"name" validate:"required,max=200"`
	LegalType string `json:"legal_type" validate:"max=50"`
	Phone     string `json:"phone" validate:"max=50"`
	Email     string `json:"email" validate:"omitempty,email"`
	Address   string `json:"address" validate:"max=500"`
}

type grantInput struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

func (h *Handler) listOrganizations(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	includeAll := r.URL.Query().Get("all") == "1"
	orgs, err := h.service.ListVisibleOrganizations(r.Context(), principal.UserID, includeAll)
	if err != nil {
		h.fail(w, "list organizations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"organizations": orgs})
}

func (h *Handler) createOrganization(w http.ResponseWriter, r *http.Request) {
	var in createOrganizationInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if errs := h.validate(in); errs != nil {
		httpx.ValidationProblem(w, errs)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	org, err := h.service.CreateOrganization(r.Context(), principal.UserID, Organization{
		Name:      in.Name,
		LegalType: in.LegalType,
		Phone:     in.Phone,
		Email:     in.Email,
		Address:   in.Address,
	})
	if err != nil {
		h.fail(w, "create organization", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, org)
}

func (h *Handler) showOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, _ := OrganizationIDFromContext(r.Context())
	org, err := h.service.GetOrganization(r.Context(), orgID)
	if err != nil {
		h.fail(w, "get organization", err)
		return
	}
	httpx.JSON(w, http.StatusOK, org)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	orgID, _ := OrganizationIDFromContext(r.Context())
	members, err := h.service.ListMembers(r.Context(), orgID)
	if err != nil {
		h.fail(w, "list members", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"members": members})
}

func (h *Handler) grantMember(w http.ResponseWriter, r *http.Request) {
	var in grantInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if errs := h.validate(in); errs != nil {
		httpx.ValidationProblem(w, errs)
		return
	}
	orgID, _ := OrganizationIDFromContext(r.Context())
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.GrantAccess(r.Context(), principal.UserID, in.UserID, orgID); err != nil {
		h.fail(w, "grant access", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeMember(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, ErrNotFound)
		return
	}
	orgID, _ := OrganizationIDFromContext(r.Context())
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.RevokeAccess(r.Context(), principal.UserID, userID, orgID); err != nil {
		h.fail(w, "revoke access", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
	if !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrIntegrity) && !errors.Is(err, httpx.ErrValidation) {
		h.logger.Error("orgaccess: "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
