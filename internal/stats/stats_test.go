package stats

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.gauges, "expected gauges to be initialized")
	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/metrics"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /metrics to be set")
	assert.Equal(t, "GET /metrics", pattern, "expected handler to be registered for GET method on /metrics")
}

func TestIncrDecr(t *testing.T) {
	su := NewStatsUpdater(nil)
	su.RegisterMetric("active_connections")
	// registering twice is a no-op
	su.RegisterMetric("active_connections")

	su.Incr("active_connections")
	su.Incr("active_connections")
	su.Decr("active_connections")

	assert.Equal(t, float64(1), promtest.ToFloat64(su.gauges["active_connections"]))
}

func TestIncr_UnknownMetricPanics(t *testing.T) {
	su := NewStatsUpdater(nil)
	assert.PanicsWithValue(t, "metric not found: nope", func() { su.Incr("nope") })
}

func TestInstrument(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	h := su.Instrument(mux)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)

	count := promtest.ToFloat64(su.requests.WithLabelValues(http.MethodGet, "GET /ping", "418"))
	assert.Equal(t, float64(1), count)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "convo_http_requests_total")
}
