package tracing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/freightdesk/relay/internal/shared/id"
)

// TraceID identifies one request across log lines.
type TraceID string

// Span records a single traced operation.
type Span struct {
	TraceID    TraceID
	Name       string
	Service    string
	StartTime  time.Time
	Duration   time.Duration
	StatusCode int
	Err        error
	tags       []zap.Field
}

// Tracer logs completed spans without blocking request handling.
type Tracer struct {
	service string
	logger  *zap.Logger
	spans   chan *Span
}

// New creates a tracer and starts its collector.
func New(service string, logger *zap.Logger) *Tracer {
	t := &Tracer{
		service: service,
		logger:  logger,
		spans:   make(chan *Span, 1000),
	}
	go t.collect()
	return t
}

// StartSpan opens a span, minting a trace ID unless the context already
// carries one.
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID, _ := ctx.Value(traceIDKey).(TraceID)
	if traceID == "" {
		traceID = TraceID(id.NewRequestID())
	}

	span := &Span{
		TraceID:   traceID,
		Name:      name,
		Service:   t.service,
		StartTime: time.Now(),
	}
	return span, context.WithValue(ctx, traceIDKey, traceID)
}

// SetTag attaches a key/value pair to the span.
func (s *Span) SetTag(key, value string) {
	s.tags = append(s.tags, zap.String(key, value))
}

// SetStatus records the HTTP status code.
func (s *Span) SetStatus(code int) {
	s.StatusCode = code
}

// SetError records a failure.
func (s *Span) SetError(err error) {
	s.Err = err
}

// Finish stamps the duration.
func (s *Span) Finish() {
	s.Duration = time.Since(s.StartTime)
}

// Submit hands a finished span to the collector; full buffers drop the
// span rather than stall the request.
func (t *Tracer) Submit(span *Span) {
	select {
	case t.spans <- span:
	default:
		t.logger.Warn("span buffer full, dropping span",
			zap.String("trace_id", string(span.TraceID)),
		)
	}
}

func (t *Tracer) collect() {
	for span := range t.spans {
		fields := []zap.Field{
			zap.String("trace_id", string(span.TraceID)),
			zap.String("operation", span.Name),
			zap.String("service", span.Service),
			zap.Duration("duration", span.Duration),
			zap.Int("status", span.StatusCode),
		}
		fields = append(fields, span.tags...)

		if span.Err != nil {
			fields = append(fields, zap.Error(span.Err))
			t.logger.Warn("request completed with error", fields...)
		} else {
			t.logger.Debug("request completed", fields...)
		}
	}
}

type contextKey string

const traceIDKey contextKey = "trace_id"

// GetTraceID retrieves the trace ID from context, empty if untraced.
func GetTraceID(ctx context.Context) TraceID {
	if traceID, ok := ctx.Value(traceIDKey).(TraceID); ok {
		return traceID
	}
	return ""
}
