package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetdesk/assetdesk/internal/observability"
	"github.com/assetdesk/assetdesk/internal/platform/cache"
	"github.com/assetdesk/assetdesk/internal/platform/httpx"
	"github.com/assetdesk/assetdesk/internal/rbac"
	"github.com/assetdesk/assetdesk/internal/shared"
)

type emptyLoader struct{}

func (emptyLoader) UserPermissions(context.Context, int64) (rbac.PermissionSet, error) {
	return rbac.NewPermissionSet(), nil
}

type routerFixture struct {
	mr       *miniredis.Miniredis
	sessions *shared.SessionManager
	router   chi.Router
}

func newRouterFixture(t *testing.T, rateLimit int) *routerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := shared.NewSessionManager(client, "assetdesk_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	rbacMW := rbac.NewMiddleware(rbac.NewGate(emptyLoader{}, nil, logger), logger)

	handler := NewRouter(RouterParams{
		Logger:             logger,
		Config:             &Config{AppEnv: "test", RateLimitPerMinute: rateLimit, AppRequestTimeout: 5 * time.Second},
		SessionManager:     sessions,
		CSRFManager:        csrf,
		RBACMiddleware:     rbacMW,
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacMW),
		Metrics:            observability.NewMetrics(),
	})
	router, ok := handler.(chi.Router)
	require.True(t, ok)

	router.Get("/test/token", func(w http.ResponseWriter, r *http.Request) {
		token, err := csrf.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
		require.NoError(t, err)
		httpx.JSON(w, http.StatusOK, map[string]string{"token": token})
	})
	router.Post("/test/echo", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	return &routerFixture{mr: mr, sessions: sessions, router: router}
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func TestHealthz(t *testing.T) {
	f := newRouterFixture(t, 60)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestHomeIssuesSessionCookie(t *testing.T) {
	f := newRouterFixture(t, 60)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"login":"/auth/login"`)

	cookie := sessionCookie(t, rec, f.sessions.CookieName())
	assert.True(t, cookie.HttpOnly)
	assert.True(t, f.mr.Exists("assetdesk:session:"+cookie.Value))
}

func TestCSRFRejectsUnsafeRequestsWithoutToken(t *testing.T) {
	f := newRouterFixture(t, 60)
	req := httptest.NewRequest(http.MethodPost, "/test/echo", nil)
	req.Header.Set("Accept", "application/json")
	rec := f.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "CSRF")
}

func TestCSRFAcceptsSessionToken(t *testing.T) {
	f := newRouterFixture(t, 60)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/test/token", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec, f.sessions.CookieName())
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	token := body.Token

	req := httptest.NewRequest(http.MethodPost, "/test/echo", nil)
	req.AddCookie(cookie)
	req.Header.Set(shared.CSRFHeader, "forged")
	assert.Equal(t, http.StatusForbidden, f.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/test/echo", nil)
	req.AddCookie(cookie)
	req.Header.Set(shared.CSRFHeader, token)
	assert.Equal(t, http.StatusAccepted, f.do(req).Code)
}

func TestProtectedRoutesRequireSignIn(t *testing.T) {
	f := newRouterFixture(t, 60)
	req := httptest.NewRequest(http.MethodGet, "/permissions", nil)
	req.Header.Set("Accept", "application/json")
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/permissions", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))
}

func TestRateLimitPerClient(t *testing.T) {
	f := newRouterFixture(t, 2)
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
	}
	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newRouterFixture(t, 60)
	f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "assetdesk_http_requests_total")
}

func TestReadinessReportsEachDependency(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	handler := readinessHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), map[string]func(context.Context) error{
		"redis": func(ctx context.Context) error { return cache.Ping(ctx, client) },
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ready":true,"checks":{"redis":"ok"}}`, rec.Body.String())

	mr.Close()
	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"ready":false,"checks":{"redis":"unavailable"}}`, rec.Body.String())
}
