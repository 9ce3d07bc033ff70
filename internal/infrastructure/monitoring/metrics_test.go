package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsIsolated(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordExchange("ok", time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Exchanges.WithLabelValues("ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Exchanges.WithLabelValues("ok")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetSessionsActive(3)
		m.RecordSessionStart("ok")
		m.RecordSessionStop("idle")
		m.RecordExchange("ok", time.Second)
		m.IncStreamDeltas()
		m.IncWSConnections()
		m.DecWSConnections()
		m.SetBreakerState(2)
	})
	assert.Equal(t, Snapshot{}, m.GetSnapshot())
}

func TestSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordSessionStart("ok")
	m.RecordSessionStart("auth_required")
	m.RecordExchange("transport_error", time.Second)
	m.RecordHTTPRequest("POST", "/message", "404", time.Millisecond, 10)
	m.RecordHTTPRequest("POST", "/message", "200", time.Millisecond, 10)

	s := m.GetSnapshot()
	assert.Equal(t, int64(1), s.FailedStarts)
	assert.Equal(t, int64(1), s.Exchanges)
	assert.Equal(t, int64(2), s.TotalRequests)
	assert.Equal(t, int64(1), s.TotalErrors)
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	r := gin.New()
	r.Use(Middleware(m))
	r.GET("/sessions/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/sessions/:id", "200")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "chatbridge_http_requests_total")
	assert.Contains(t, w.Body.String(), "chatbridge_uptime_seconds")
}
