package tracing

import (
	"context"

	"github.com/gin-gonic/gin"
)

// Middleware traces each daemon HTTP request. Inbound X-Trace-ID
// headers are honored so a caller can stitch its own trace through the
// relay; the resolved ID is echoed on the response.
func Middleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if inbound := c.GetHeader("X-Trace-ID"); inbound != "" {
			ctx = context.WithValue(ctx, traceIDKey, TraceID(inbound))
		}

		span, ctx := tracer.StartSpan(ctx, c.FullPath())
		span.SetTag("http.method", c.Request.Method)
		span.SetTag("http.path", c.Request.URL.Path)

		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Trace-ID", string(span.TraceID))

		c.Next()

		span.SetStatus(c.Writer.Status())
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}
		span.Finish()
		tracer.Submit(span)
	}
}
