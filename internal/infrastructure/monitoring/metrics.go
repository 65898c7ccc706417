package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "musichub"

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Sandbox metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration *prometheus.HistogramVec
	ScriptRequests  *prometheus.CounterVec

	// Resolver metrics
	Attempts           *prometheus.CounterVec
	ResolutionDuration *prometheus.HistogramVec

	// Download metrics
	DownloadsActive prometheus.Gauge
	DownloadsTotal  *prometheus.CounterVec
	DownloadedBytes prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge

	Uptime    prometheus.GaugeFunc
	startTime time.Time

	mu       sync.RWMutex
	snapshot Snapshot
}

// Snapshot holds current values for the JSON health endpoint
type Snapshot struct {
	TotalRequests   int64   `json:"totalRequests"`
	TotalErrors     int64   `json:"totalErrors"`
	Resolutions     int64   `json:"resolutions"`
	FailedAttempts  int64   `json:"failedAttempts"`
	ActiveDownloads int64   `json:"activeDownloads"`
	AvgLatencyMs    float64 `json:"avgLatencyMs"`
	totalDuration   float64
}

// NewMetrics creates a metrics collector backed by its own registry, so
// multiple instances (tests, CLI) never collide on the global one.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{registry: reg, startTime: time.Now()}

	m.RequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})
	m.RequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "route"})

	m.SessionsActive = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "sandbox", Name: "sessions_active",
		Help: "Number of sandbox sessions currently open",
	})
	m.SessionsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "sandbox", Name: "sessions_total",
		Help: "Sandbox sessions by outcome",
	}, []string{"outcome"})
	m.SessionDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "sandbox", Name: "session_duration_seconds",
		Help:    "Wall time of a sandbox session from creation to close",
		Buckets: []float64{.05, .1, .25, .5, 1, 2, 3.5, 5, 10, 20, 30},
	}, []string{"operation"})
	m.ScriptRequests = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "sandbox", Name: "script_http_requests_total",
		Help: "Outbound HTTP requests issued by scripts",
	}, []string{"result"})

	m.Attempts = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "resolver", Name: "attempts_total",
		Help: "Per-source resolution attempts by operation and outcome",
	}, []string{"operation", "outcome"})
	m.ResolutionDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "resolver", Name: "duration_seconds",
		Help:    "End-to-end resolution time including fallback",
		Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 15, 30, 60, 120},
	}, []string{"operation", "result"})

	m.DownloadsActive = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "downloads", Name: "active",
		Help: "Downloads currently transferring",
	})
	m.DownloadsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "downloads", Name: "finished_total",
		Help: "Downloads reaching a terminal state",
	}, []string{"status"})
	m.DownloadedBytes = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "downloads", Name: "bytes_total",
		Help: "Bytes written to disk by downloads",
	})

	m.WSConnections = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "ws_connections",
		Help: "Number of active WebSocket connections",
	})
	m.Uptime = f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: "uptime_seconds",
		Help: "Backend uptime in seconds",
	}, func() float64 { return time.Since(m.startTime).Seconds() })

	return m
}

// Handler exposes the registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, statusClass(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status >= 400 {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// SessionOpened marks a sandbox session as live
func (m *Metrics) SessionOpened() {
	m.SessionsActive.Inc()
}

// SessionClosed records how a sandbox session ended
func (m *Metrics) SessionClosed(operation, outcome string, duration time.Duration) {
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(outcome).Inc()
	m.SessionDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordScriptRequest counts a script-issued HTTP request
func (m *Metrics) RecordScriptRequest(result string) {
	m.ScriptRequests.WithLabelValues(result).Inc()
}

// RecordAttempt counts one per-source attempt
func (m *Metrics) RecordAttempt(operation, outcome string) {
	m.Attempts.WithLabelValues(operation, outcome).Inc()
	if outcome != "success" {
		m.mu.Lock()
		m.snapshot.FailedAttempts++
		m.mu.Unlock()
	}
}

// RecordResolution records a finished resolution call
func (m *Metrics) RecordResolution(operation, result string, duration time.Duration) {
	m.ResolutionDuration.WithLabelValues(operation, result).Observe(duration.Seconds())
	m.mu.Lock()
	m.snapshot.Resolutions++
	m.mu.Unlock()
}

// DownloadStarted marks a transfer as running
func (m *Metrics) DownloadStarted() {
	m.DownloadsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveDownloads++
	m.mu.Unlock()
}

// DownloadFinished records a transfer reaching a terminal status
func (m *Metrics) DownloadFinished(status string, bytes int64) {
	m.DownloadsActive.Dec()
	m.DownloadsTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		m.DownloadedBytes.Add(float64(bytes))
	}
	m.mu.Lock()
	m.snapshot.ActiveDownloads--
	m.mu.Unlock()
}

func (m *Metrics) IncWSConnections() { m.WSConnections.Inc() }
func (m *Metrics) DecWSConnections() { m.WSConnections.Dec() }

// Snapshot returns a copy of the counters shown on /health
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	if s.TotalRequests > 0 {
		s.AvgLatencyMs = s.totalDuration / float64(s.TotalRequests) * 1000
	}
	return s
}

// StartTime returns when the collector was created
func (m *Metrics) StartTime() time.Time {
	return m.startTime
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
