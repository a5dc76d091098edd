package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTracedRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tracer := New("relayd-test", zap.NewNop())
	r := gin.New()
	r.Use(Middleware(tracer))
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"trace": string(GetTraceID(c.Request.Context()))})
	})
	return r
}

func TestMiddlewareMintsTraceID(t *testing.T) {
	r := newTracedRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	got := w.Header().Get("X-Trace-ID")
	require.NotEmpty(t, got)
	assert.True(t, strings.HasPrefix(got, "req_"))
	assert.Contains(t, w.Body.String(), got)
}

func TestMiddlewareHonorsInboundTraceID(t *testing.T) {
	r := newTracedRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("X-Trace-ID", "req_upstream_caller")
	r.ServeHTTP(w, req)

	assert.Equal(t, "req_upstream_caller", w.Header().Get("X-Trace-ID"))
}

func TestSpanLifecycle(t *testing.T) {
	tracer := New("relayd-test", zap.NewNop())

	span, ctx := tracer.StartSpan(context.Background(), "proxy")
	assert.Equal(t, span.TraceID, GetTraceID(ctx))

	child, _ := tracer.StartSpan(ctx, "upstream")
	assert.Equal(t, span.TraceID, child.TraceID)

	span.SetStatus(http.StatusOK)
	span.Finish()
	tracer.Submit(span)
	assert.GreaterOrEqual(t, span.Duration.Nanoseconds(), int64(0))
}
