package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/assetdesk/assetdesk/internal/platform/httpx"
	"github.com/assetdesk/assetdesk/internal/shared"
)

const (
	loginPath   = "/auth/login"
	defaultPath = "/"
)

// Middleware wires authorization helpers for HTTP handlers.
type Middleware struct {
	Gate   *Gate
	Logger *slog.Logger
}

// NewMiddleware builds the HTTP gate.
func NewMiddleware(gate *Gate, logger *slog.Logger) Middleware {
	return Middleware{Gate: gate, Logger: logger}
}

// Require refuses the request unless the session principal satisfies req.
// The wrapped handler never runs on denial.
func (m Middleware) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var principal *shared.Principal
			if p, ok := shared.PrincipalFromContext(r.Context()); ok {
				principal = &p
			}
			granted, err := m.Gate.authorize(r.Context(), principal, req)
			if err != nil {
				m.deny(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPermissions(r.Context(), granted)))
		})
	}
}

// RequirePermission requires a single permission.
func (m Middleware) RequirePermission(p Permission) func(http.Handler) http.Handler {
	return m.Require(Single(p))
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	return m.Require(AnyOf(perms...))
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...Permission) func(http.Handler) http.Handler {
	return m.Require(AllOf(perms...))
}

// RequireAuthenticated only requires a signed-in principal.
func (m Middleware) RequireAuthenticated() func(http.Handler) http.Handler {
	return m.Require(Authenticated())
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, err error) {
	jsonClient := httpx.WantsJSON(r)
	switch {
	case errors.Is(err, ErrUnauthenticated):
		if jsonClient {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		shared.RedirectWithFlash(w, r, loginPath, shared.FlashWarning, "Please sign in to continue.")
	case errors.Is(err, ErrForbidden):
		if jsonClient {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permission")
			return
		}
		shared.RedirectWithFlash(w, r, defaultPath, shared.FlashError, "insufficient permission")
	default:
		if m.Logger != nil {
			m.Logger.Error("rbac gate", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
