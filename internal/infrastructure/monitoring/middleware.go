package monitoring

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// Route templates keep label cardinality bounded
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// Timer measures a resolution call
type Timer struct {
	start     time.Time
	metrics   *Metrics
	operation string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, operation string) *Timer {
	return &Timer{start: time.Now(), metrics: metrics, operation: operation}
}

// Stop records the elapsed time under result
func (t *Timer) Stop(result string) time.Duration {
	d := time.Since(t.start)
	if t.metrics != nil {
		t.metrics.RecordResolution(t.operation, result, d)
	}
	return d
}
