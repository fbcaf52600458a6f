package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) (int, string) {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Code, rr.Body.String()
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	metrics := NewMetrics()
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/devices/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/plain", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, path := range []string{"/devices/1", "/devices/2", "/plain"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("/devices/{id}", "418")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("/plain", "200")))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.requestDuration))

	code, body := scrape(t, metrics)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `assetdesk_http_request_duration_seconds_bucket{route="/devices/{id}"`)
	assert.NotContains(t, body, `route="/devices/1"`)
}

func TestRecordersCountByLabel(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordAuthzDecision("denied", "roles_manage")
	metrics.RecordAuthzDecision("denied", "roles_manage")
	metrics.RecordAuthzDecision("allowed", "any(users_read,roles_read)")
	metrics.RecordSnapshotLookup("hit")
	metrics.RecordSnapshotLookup("miss")
	metrics.RecordSnapshotLookup("hit")

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"denied", testutil.ToFloat64(metrics.authzDecisions.WithLabelValues("denied", "roles_manage")), 2},
		{"allowed", testutil.ToFloat64(metrics.authzDecisions.WithLabelValues("allowed", "any(users_read,roles_read)")), 1},
		{"snapshot hit", testutil.ToFloat64(metrics.snapshotLookups.WithLabelValues("hit")), 2},
		{"snapshot miss", testutil.ToFloat64(metrics.snapshotLookups.WithLabelValues("miss")), 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.got, tt.name)
	}

	_, body := scrape(t, metrics)
	assert.Contains(t, body, `assetdesk_permission_snapshot_lookups_total{result="hit"} 2`)
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, "process_")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.RecordAuthzDecision("allowed", "authenticated")
	metrics.RecordSnapshotLookup("miss")

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	rr := httptest.NewRecorder()
	metrics.Middleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	code, _ := scrape(t, metrics)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
