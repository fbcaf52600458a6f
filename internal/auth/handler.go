package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/assetdesk/assetdesk/internal/platform/httpx"
	"github.com/assetdesk/assetdesk/internal/rbac"
	"github.com/assetdesk/assetdesk/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	snapshots      SnapshotSource
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	rbac           rbac.Middleware
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, snapshots SnapshotSource, sessions *shared.SessionManager, csrf *shared.CSRFManager, rbacMW rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		snapshots:      snapshots,
		sessionManager: sessions,
		csrfManager:    csrf,
		rbac:           rbacMW,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

// MountProfile registers the current-user route.
func (h *Handler) MountProfile(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated())
		r.Get("/", h.showMe)
	})
}

type loginForm struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,max=72"`
}

type profileView struct {
	Principal   shared.Principal `json:"principal"`
	Permissions []string         `json:"permissions"`
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Error("auth: csrf token", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	body := map[string]any{"csrf_token": token}
	if flash := sess.PopFlash(); flash != nil {
		body["flash"] = flash
	}
	httpx.JSON(w, http.StatusOK, body)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("auth: session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	form, ok := h.decodeLogin(w, r)
	if !ok {
		return
	}

	acc, err := h.service.Authenticate(r.Context(), form.Username, form.Password)
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("auth: authenticate", slog.Any("error", err))
		} else {
			h.logger.Warn("auth: login failed", slog.String("username", form.Username), slog.String("remote", r.RemoteAddr))
		}
		if httpx.WantsJSON(r) {
			httpx.RespondError(w, err)
			return
		}
		shared.RedirectWithFlash(w, r, "/auth/login", shared.FlashError, shared.UserSafeMessage(err))
		return
	}

	principal := acc.Principal()
	h.sessionManager.Regenerate(sess)
	sess.SetPrincipal(principal)
	h.csrfManager.RotateToken(sess)

	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, acc.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("auth: register session", slog.Any("error", err))
	}
	perms, err := h.snapshots.RefreshSnapshot(r.Context(), acc.ID)
	if err != nil {
		h.logger.Warn("auth: prime permission snapshot", slog.Int64("user_id", acc.ID), slog.Any("error", err))
		perms = rbac.NewPermissionSet()
	}
	h.logger.Info("auth: login", slog.Int64("user_id", acc.ID), slog.String("tier", acc.Tier.String()))

	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, profileView{Principal: principal, Permissions: perms.Strings()})
		return
	}
	shared.RedirectWithFlash(w, r, "/", shared.FlashSuccess, "Welcome back, "+acc.Username+".")
}

func (h *Handler) decodeLogin(w http.ResponseWriter, r *http.Request) (loginForm, bool) {
	var form loginForm
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := httpx.DecodeJSON(r, &form); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
			return loginForm{}, false
		}
	} else {
		if err := r.ParseForm(); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed form body")
			return loginForm{}, false
		}
		form = loginForm{Username: r.PostFormValue("username"), Password: r.PostFormValue("password")}
	}

	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		fields := map[string]string{"general": err.Error()}
		if errors.As(err, &fieldErrs) {
			fields = make(map[string]string, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		if httpx.WantsJSON(r) {
			httpx.ValidationProblem(w, fields)
		} else {
			shared.RedirectWithFlash(w, r, "/auth/login", shared.FlashError, "Username and password are required.")
		}
		return loginForm{}, false
	}
	return form, true
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("auth: remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	if httpx.WantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handler) showMe(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	perms, err := h.snapshots.Snapshot(r.Context(), principal.UserID)
	if err != nil {
		h.logger.Error("auth: permission snapshot", slog.Int64("user_id", principal.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profileView{Principal: principal, Permissions: perms.Strings()})
}
