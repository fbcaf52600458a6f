package devices

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/assetdesk/assetdesk/internal/platform/httpx"
	"github.com/assetdesk/assetdesk/internal/rbac"
	"github.com/assetdesk/assetdesk/internal/shared"
)

// Handler exposes device routes.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbacMW}
}

// MountRoutes registers device routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(rbac.DevicesRead))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(rbac.DevicesManage))
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var filter *int64
	if raw := r.URL.Query().Get("organization_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.ValidationProblem(w, map[string]string{"organization_id": "must be numeric"})
			return
		}
		filter = &id
	}
	devices, err := h.service.List(r.Context(), principal, filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(r)
	if !ok {
		httpx.RespondError(w, ErrNotFound)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	device, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, device)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(r)
	if !ok {
		httpx.RespondError(w, ErrNotFound)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), principal, id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func deviceID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if !errors.Is(err, ErrNotFound) {
		h.logger.Error("devices handler", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
