package orgaccess

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetdesk/assetdesk/internal/rbac"
	"github.com/assetdesk/assetdesk/internal/shared"
)

type staticPermissions map[int64]rbac.PermissionSet

func (s staticPermissions) UserPermissions(_ context.Context, userID int64) (rbac.PermissionSet, error) {
	return s[userID], nil
}

func newTestRouter(svc *Service, perms staticPermissions) http.Handler {
	gate := rbac.NewGate(perms, nil, slog.Default())
	h := NewHandler(slog.Default(), svc, rbac.NewMiddleware(gate, slog.Default()))
	r := chi.NewRouter()
	r.Route("/organizations", h.MountRoutes)
	return r
}

func doJSON(h http.Handler, method, path, body string, userID int64) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	sess := &shared.Session{}
	sess.SetPrincipal(shared.Principal{UserID: userID})
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerListAndCreate(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.addUser(1, shared.TierStandard)
	repo.addMember(1, repo.addOrg("Mine"))
	repo.addOrg("Theirs")
	h := newTestRouter(svc, staticPermissions{
		1: rbac.NewPermissionSet(rbac.OrganizationsRead, rbac.OrganizationsManage),
	})

	rec := doJSON(h, http.MethodGet, "/organizations?all=1", "", 1)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Organizations []Organization `json:"organizations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Equal(t, []string{"Mine"}, orgNames(listed.Organizations))

	rec = doJSON(h, http.MethodPost, "/organizations", `{"name":"Fresh","email":"ops@fresh.test"}`, 1)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(h, http.MethodPost, "/organizations", `{"email":"not-an-email"}`, 1)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Name")
}

func TestHandlerRequiresPermissions(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.addUser(1, shared.TierAdmin)
	h := newTestRouter(svc, staticPermissions{1: rbac.NewPermissionSet(rbac.OrganizationsRead)})

	rec := doJSON(h, http.MethodPost, "/organizations", `{"name":"Nope"}`, 1)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	orgs, _ := repo.ListOrganizations(context.Background())
	assert.Empty(t, orgs)
}

func TestHandlerMembershipLifecycle(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.addUser(1, shared.TierStandard)
	repo.addUser(2, shared.TierStandard)
	org := repo.addOrg("Shared")
	repo.addMember(1, org)
	h := newTestRouter(svc, staticPermissions{
		1: rbac.NewPermissionSet(rbac.OrganizationsRead, rbac.OrganizationsManage),
	})
	base := "/organizations/" + strconv.FormatInt(org, 10)

	rec := doJSON(h, http.MethodPost, base+"/members", `{"user_id":2}`, 1)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(h, http.MethodPost, base+"/members", `{"user_id":2}`, 1)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, repo.countMemberships(2, org))

	rec = doJSON(h, http.MethodGet, base+"/members", "", 1)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":2`)

	rec = doJSON(h, http.MethodDelete, base+"/members/2", "", 1)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(h, http.MethodDelete, base+"/members/1", "", 1)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 1, repo.countMemberships(1, org))
}
