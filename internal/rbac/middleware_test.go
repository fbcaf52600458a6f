package rbac

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetdesk/assetdesk/internal/shared"
)

func requestWithPrincipal(method string, principal *shared.Principal) (*http.Request, *shared.Session) {
	req := httptest.NewRequest(method, "/devices/1", nil)
	sess := &shared.Session{}
	if principal != nil {
		sess.SetPrincipal(*principal)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

func newTestMiddleware(perms map[int64]PermissionSet) (Middleware, *stubLoader) {
	loader := &stubLoader{perms: perms}
	return NewMiddleware(NewGate(loader, nil, nil), nil), loader
}

func TestMiddlewareUnauthenticatedRedirectsToLogin(t *testing.T) {
	mw, loader := newTestMiddleware(nil)
	called := false
	handler := mw.RequirePermission(DevicesRead)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	req, sess := requestWithPrincipal(http.MethodGet, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Zero(t, loader.calls)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, shared.FlashWarning, flash.Kind)
}

func TestMiddlewareForbiddenRedirectsWithNotice(t *testing.T) {
	mw, _ := newTestMiddleware(map[int64]PermissionSet{1: NewPermissionSet(DevicesRead)})
	writes := 0
	handler := mw.RequirePermission(DevicesManage)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { writes++ }))

	req, sess := requestWithPrincipal(http.MethodPost, &shared.Principal{UserID: 1})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Zero(t, writes)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "insufficient permission", flash.Message)
}

func TestMiddlewareJSONClientsGetProblems(t *testing.T) {
	mw, _ := newTestMiddleware(map[int64]PermissionSet{1: NewPermissionSet()})
	handler := mw.RequireAny(UsersRead, RolesRead)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req, _ := requestWithPrincipal(http.MethodGet, nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req, _ = requestWithPrincipal(http.MethodGet, &shared.Principal{UserID: 1})
	req.Header.Set("Accept", "application/json")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient permission")
}

func TestMiddlewareAllowsAndExposesPermissions(t *testing.T) {
	mw, _ := newTestMiddleware(map[int64]PermissionSet{1: NewPermissionSet(UsersManage, RolesRead)})
	var seen PermissionSet
	handler := mw.RequireAll(UsersManage, RolesRead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PermissionsFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req, _ := requestWithPrincipal(http.MethodPut, &shared.Principal{UserID: 1})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.True(t, seen.HasAll(UsersManage, RolesRead))
}

func TestMiddlewareRequireAuthenticated(t *testing.T) {
	mw, _ := newTestMiddleware(map[int64]PermissionSet{})
	handler := mw.RequireAuthenticated()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req, _ := requestWithPrincipal(http.MethodGet, &shared.Principal{UserID: 5})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddlewareLookupFailureIsInternalError(t *testing.T) {
	mw, loader := newTestMiddleware(nil)
	loader.err = errors.New("db down")
	handler := mw.RequirePermission(DevicesRead)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	req, _ := requestWithPrincipal(http.MethodGet, &shared.Principal{UserID: 1})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
