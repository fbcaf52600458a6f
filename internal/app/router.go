package app

import (
	"context"
	"log/slog"
	"maps"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/assetdesk/assetdesk/internal/auth"
	"github.com/assetdesk/assetdesk/internal/devices"
	"github.com/assetdesk/assetdesk/internal/observability"
	"github.com/assetdesk/assetdesk/internal/orgaccess"
	"github.com/assetdesk/assetdesk/internal/platform/httpx"
	"github.com/assetdesk/assetdesk/internal/rbac"
	"github.com/assetdesk/assetdesk/internal/roles"
	"github.com/assetdesk/assetdesk/internal/shared"
	"github.com/assetdesk/assetdesk/internal/users"
	"github.com/assetdesk/assetdesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	RBACMiddleware rbac.Middleware

	AuthHandler         *auth.Handler
	RolesHandler        *roles.Handler
	UsersHandler        *users.Handler
	OrganizationHandler *orgaccess.Handler
	DeviceHandler       *devices.Handler
	PermissionsHandler  *rbac.PermissionsHandler
	JobHandler          *jobs.Handler
	Metrics             *observability.Metrics

	// ReadinessChecks are run by /readyz, keyed by dependency name.
	ReadinessChecks map[string]func(context.Context) error
}

// NewRouter constructs the chi.Router with assetdesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readinessHandler(params.Logger, params.ReadinessChecks))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"service": "assetdesk", "env": params.Config.AppEnv}
		if principal, ok := shared.PrincipalFromContext(r.Context()); ok {
			body["principal"] = principal
		} else {
			body["login"] = "/auth/login"
		}
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			if flash := sess.PopFlash(); flash != nil {
				body["flash"] = flash
			}
		}
		httpx.JSON(w, http.StatusOK, body)
	})

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
		r.Route("/me", params.AuthHandler.MountProfile)
	}
	if params.RolesHandler != nil {
		r.Route("/roles", params.RolesHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.OrganizationHandler != nil {
		r.Route("/organizations", params.OrganizationHandler.MountRoutes)
	}
	if params.DeviceHandler != nil {
		r.Route("/devices", params.DeviceHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireAuthenticated())
			params.JobHandler.MountRoutes(r)
		})
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

func readinessHandler(logger *slog.Logger, checks map[string]func(context.Context) error) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, name := range slices.Sorted(maps.Keys(checks)) {
			if err := checks[name](r.Context()); err != nil {
				logger.Warn("readiness check failed", slog.String("dependency", name), slog.Any("error", err))
				results[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		httpx.JSON(w, status, map[string]any{"ready": status == http.StatusOK, "checks": results})
	}
}
