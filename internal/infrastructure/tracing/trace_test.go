package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved() (*Tracer, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return New("test", zap.New(core)), logs
}

func TestChildSpansShareTrace(t *testing.T) {
	tracer, logs := newObserved()

	parent, ctx := tracer.StartSpan(context.Background(), "resolve")
	child, _ := tracer.StartSpan(ctx, "attempt")

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
	assert.NotEqual(t, parent.SpanID, child.SpanID)

	child.SetError(errors.New("boom"))
	tracer.Finish(child)
	tracer.Finish(parent)
	tracer.Close()

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "span completed with error", logs.All()[0].Message)
	assert.Equal(t, "span completed", logs.All()[1].Message)
}

func TestFinishAfterCloseDoesNotPanic(t *testing.T) {
	tracer, _ := newObserved()
	span, _ := tracer.StartSpan(context.Background(), "late")
	tracer.Close()

	assert.NotPanics(t, func() { tracer.Finish(span) })
}

func TestHTTPMiddlewarePropagatesCallerTrace(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, _ := newObserved()
	defer tracer.Close()

	var seen TraceID
	r := gin.New()
	r.Use(HTTPMiddleware(tracer))
	r.GET("/ping", func(c *gin.Context) {
		seen = TraceIDFrom(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderTraceID, "req_caller")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, TraceID("req_caller"), seen)
	assert.Equal(t, "req_caller", w.Header().Get(HeaderTraceID))
	assert.NotEmpty(t, w.Header().Get(HeaderSpanID))
}

func TestFields(t *testing.T) {
	assert.Nil(t, Fields(context.Background()))
	ctx := WithTraceContext(context.Background(), "req_x", "")
	assert.Len(t, Fields(ctx), 1)
}
