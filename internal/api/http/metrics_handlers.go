package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/download"
)

// MetricsSummary provides high-level metrics
type MetricsSummary struct {
	Timestamp        time.Time         `json:"timestamp"`
	TotalRequests    int64             `json:"total_requests"`
	AverageLatencyMs float64           `json:"average_latency_ms"`
	ErrorRate        float64           `json:"error_rate"`
	Resolutions      int64             `json:"resolutions"`
	FailedAttempts   int64             `json:"failed_attempts"`
	ActiveDownloads  int64             `json:"active_downloads"`
	UptimeSeconds    float64           `json:"uptime_seconds"`
	Downloads        *download.Summary `json:"downloads,omitempty"`
}

// MetricsJSON returns a JSON summary of the counters behind /metrics
func (h *Handlers) MetricsJSON(c *gin.Context) {
	out := MetricsSummary{Timestamp: time.Now().UTC()}
	if h.metrics != nil {
		snap := h.metrics.Snapshot()
		out.TotalRequests = snap.TotalRequests
		out.AverageLatencyMs = snap.AvgLatencyMs
		out.Resolutions = snap.Resolutions
		out.FailedAttempts = snap.FailedAttempts
		out.ActiveDownloads = snap.ActiveDownloads
		out.UptimeSeconds = time.Since(h.metrics.StartTime()).Seconds()
		if snap.TotalRequests > 0 {
			out.ErrorRate = float64(snap.TotalErrors) / float64(snap.TotalRequests)
		}
	}
	if h.downloads != nil {
		if sum, err := h.downloads.Stats(c.Request.Context()); err == nil {
			out.Downloads = &sum
		}
	}
	c.JSON(http.StatusOK, out)
}
