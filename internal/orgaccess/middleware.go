package orgaccess

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/assetdesk/assetdesk/internal/platform/httpx"
	"github.com/assetdesk/assetdesk/internal/shared"
)

type orgContextKey struct{}

// OrganizationIDFromContext returns the organization id checked by
// RequireOrganizationAccess.
func OrganizationIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(orgContextKey{}).(int64)
	return id, ok
}

// Middleware gates organization-scoped routes.
type Middleware struct {
	service *Service
	logger  *slog.Logger
}

// NewMiddleware builds Middleware.
func NewMiddleware(service *Service, logger *slog.Logger) Middleware {
	return Middleware{service: service, logger: logger}
}

// RequireOrganizationAccess lets the request through only when the session
// principal may see the organization named by the route parameter. Missing
// organizations and missing access produce the same not-found response.
func (m Middleware) RequireOrganizationAccess(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
			if err != nil {
				notFound(w, r)
				return
			}
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				notFound(w, r)
				return
			}
			allowed, err := m.service.HasAccess(r.Context(), principal.UserID, orgID)
			if err != nil {
				if m.logger != nil {
					m.logger.Error("orgaccess: check access", slog.Int64("organization_id", orgID), slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !allowed {
				notFound(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), orgContextKey{}, orgID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	if httpx.WantsJSON(r) {
		httpx.RespondError(w, ErrNotFound)
		return
	}
	shared.RedirectWithFlash(w, r, "/organizations", shared.FlashError, shared.UserSafeMessage(ErrNotFound))
}
