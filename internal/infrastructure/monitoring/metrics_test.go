package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordAttempt("musicUrl", "success")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Attempts.WithLabelValues("musicUrl", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Attempts.WithLabelValues("musicUrl", "success")))
}

func TestSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordHTTPRequest("GET", "/api/music/search", 200, 10*time.Millisecond)
	m.RecordHTTPRequest("GET", "/api/music/url", 500, 30*time.Millisecond)
	m.RecordAttempt("musicUrl", "timeout")
	m.DownloadStarted()

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.TotalRequests)
	assert.Equal(t, int64(1), s.TotalErrors)
	assert.Equal(t, int64(1), s.FailedAttempts)
	assert.Equal(t, int64(1), s.ActiveDownloads)
	assert.InDelta(t, 20.0, s.AvgLatencyMs, 0.001)

	m.DownloadFinished("completed", 1024)
	assert.Equal(t, int64(0), m.Snapshot().ActiveDownloads)
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.DownloadedBytes))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	r := gin.New()
	r.Use(Middleware(m))
	r.GET("/api/downloads/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/downloads/abc", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/downloads/:id", "4xx")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(w.Body.String(), "musichub_http_requests_total"))
}
