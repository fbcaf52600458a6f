package orgaccess

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/assetdesk/assetdesk/internal/shared"
)

func accessRouter(svc *Service) (http.Handler, *int64) {
	var seen int64
	r := chi.NewRouter()
	r.With(NewMiddleware(svc, nil).RequireOrganizationAccess("orgID")).
		Get("/organizations/{orgID}", func(w http.ResponseWriter, r *http.Request) {
			seen, _ = OrganizationIDFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		})
	return r, &seen
}

func serveAs(h http.Handler, principal *shared.Principal, path string, jsonClient bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if jsonClient {
		req.Header.Set("Accept", "application/json")
	}
	sess := &shared.Session{}
	if principal != nil {
		sess.SetPrincipal(*principal)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireOrganizationAccess(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.addUser(1, shared.TierStandard)
	repo.addUser(2, shared.TierAdmin)
	member := repo.addOrg("Member")
	foreign := repo.addOrg("Foreign")
	repo.addMember(1, member)
	h, seen := accessRouter(svc)

	rec := serveAs(h, &shared.Principal{UserID: 1}, "/organizations/"+strconv.FormatInt(member, 10), true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, member, *seen)

	foreignRec := serveAs(h, &shared.Principal{UserID: 1}, "/organizations/"+strconv.FormatInt(foreign, 10), true)
	missingRec := serveAs(h, &shared.Principal{UserID: 1}, "/organizations/999", true)
	assert.Equal(t, http.StatusNotFound, foreignRec.Code)
	assert.Equal(t, missingRec.Code, foreignRec.Code)
	assert.Equal(t, missingRec.Body.String(), foreignRec.Body.String())

	rec = serveAs(h, &shared.Principal{UserID: 2}, "/organizations/"+strconv.FormatInt(foreign, 10), true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serveAs(h, &shared.Principal{UserID: 1}, "/organizations/abc", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequireOrganizationAccessHTMLRedirects(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.addUser(1, shared.TierStandard)
	foreign := repo.addOrg("Foreign")
	h, _ := accessRouter(svc)

	rec := serveAs(h, &shared.Principal{UserID: 1}, "/organizations/"+strconv.FormatInt(foreign, 10), false)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/organizations", rec.Header().Get("Location"))
}
