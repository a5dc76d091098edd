package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/freightdesk/relay/internal/relay"
	"github.com/freightdesk/relay/internal/relay/breaker"
	"github.com/freightdesk/relay/internal/relay/queue"
	"github.com/freightdesk/relay/internal/transport"
)

type stubForwarder struct {
	calls atomic.Int32
	fn    func(method, path string) (*transport.Response, error)
}

func (s *stubForwarder) Forward(ctx context.Context, method, path string, query url.Values, header http.Header, body []byte) (*transport.Response, error) {
	s.calls.Add(1)
	return s.fn(method, path)
}

func okResponse(body string) *transport.Response {
	return &transport.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(body),
	}
}

func newTestRouter(t *testing.T, fwd Forwarder, opts relay.Options) (*gin.Engine, *relay.Relay) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if opts.RetryBaseWait == 0 {
		opts.RetryBaseWait = 5 * time.Millisecond
	}
	if opts.RetryMaxWait == 0 {
		opts.RetryMaxWait = 20 * time.Millisecond
	}
	rl := relay.New(opts)
	t.Cleanup(rl.Close)

	h := NewHandlers(rl, fwd, zap.NewNop())
	r := gin.New()
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/status", h.Status)
	r.Any("/proxy/*path", h.Proxy)
	r.POST("/admin/cache/clear", h.ClearCache)
	r.POST("/admin/queue/reset", h.ResetQueue)
	return r, rl
}

func do(r *gin.Engine, method, target string, header map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestStatusEndpoint(t *testing.T) {
	fwd := &stubForwarder{fn: func(string, string) (*transport.Response, error) {
		return okResponse(`{}`), nil
	}}
	r, _ := newTestRouter(t, fwd, relay.Options{})

	w := do(r, http.MethodGet, "/status", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"circuit_state":"closed"`)
	assert.Contains(t, w.Body.String(), `"queue_length":0`)
	assert.Contains(t, w.Body.String(), `"is_loading":false`)
}

func TestHealthEndpoint(t *testing.T) {
	fwd := &stubForwarder{fn: func(string, string) (*transport.Response, error) {
		return okResponse(`{}`), nil
	}}
	r, _ := newTestRouter(t, fwd, relay.Options{})

	w := do(r, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}

func TestProxyForwardsUpstreamResponse(t *testing.T) {
	fwd := &stubForwarder{fn: func(method, path string) (*transport.Response, error) {
		assert.Equal(t, http.MethodGet, method)
		assert.Equal(t, "/cargo", path)
		return okResponse(`{"items":[]}`), nil
	}}
	r, _ := newTestRouter(t, fwd, relay.Options{})

	w := do(r, http.MethodGet, "/proxy/cargo", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestProxyCachesGETs(t *testing.T) {
	fwd := &stubForwarder{fn: func(string, string) (*transport.Response, error) {
		return okResponse(`{"n":1}`), nil
	}}
	r, _ := newTestRouter(t, fwd, relay.Options{CacheTTL: time.Minute})

	for i := 0; i < 2; i++ {
		w := do(r, http.MethodGet, "/proxy/cargo?page=1", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, int32(1), fwd.calls.Load())

	// Different query is a different identity.
	w := do(r, http.MethodGet, "/proxy/cargo?page=2", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(2), fwd.calls.Load())
}

func TestProxyDoesNotCachePOSTs(t *testing.T) {
	fwd := &stubForwarder{fn: func(string, string) (*transport.Response, error) {
		return okResponse(`{"created":true}`), nil
	}}
	r, _ := newTestRouter(t, fwd, relay.Options{CacheTTL: time.Minute})

	for i := 0; i < 2; i++ {
		w := do(r, http.MethodPost, "/proxy/cargo", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, int32(2), fwd.calls.Load())
}

func TestAdminClearCacheForcesRefetch(t *testing.T) {
	fwd := &stubForwarder{fn: func(string, string) (*transport.Response, error) {
		return okResponse(`{"n":1}`), nil
	}}
	r, _ := newTestRouter(t, fwd, relay.Options{CacheTTL: time.Minute})

	do(r, http.MethodGet, "/proxy/cargo", nil)
	require.Equal(t, int32(1), fwd.calls.Load())

	w := do(r, http.MethodPost, "/admin/cache/clear", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	do(r, http.MethodGet, "/proxy/cargo", nil)
	assert.Equal(t, int32(2), fwd.calls.Load())
}

func TestProxyRelaysUpstreamClientError(t *testing.T) {
	fwd := &stubForwarder{fn: func(method, path string) (*transport.Response, error) {
		resp := &transport.Response{
			Status: http.StatusNotFound,
			Header: http.Header{"Content-Type": {"application/json"}},
			Body:   []byte(`{"error":"no such cargo"}`),
		}
		return resp, queue.Fatal(&transport.UpstreamError{
			Method:     method,
			Path:       path,
			StatusText: "404 Not Found",
			Response:   resp,
		})
	}}
	r, _ := newTestRouter(t, fwd, relay.Options{})

	w := do(r, http.MethodGet, "/proxy/cargo/99", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"no such cargo"}`, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestProxyCircuitOpenFailsFast(t *testing.T) {
	fwd := &stubForwarder{fn: func(string, string) (*transport.Response, error) {
		return nil, queue.Fatal(errors.New("bad request upstream"))
	}}
	r, _ := newTestRouter(t, fwd, relay.Options{TripThreshold: 1})

	w := do(r, http.MethodGet, "/proxy/cargo", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = do(r, http.MethodGet, "/proxy/cargo", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"circuit":"open"`)
	assert.Equal(t, int32(1), fwd.calls.Load(), "no upstream call while open")
}

func TestAdminQueueResetClosesCircuit(t *testing.T) {
	fwd := &stubForwarder{fn: func(string, string) (*transport.Response, error) {
		return nil, queue.Fatal(errors.New("bad request upstream"))
	}}
	r, rl := newTestRouter(t, fwd, relay.Options{TripThreshold: 1})

	do(r, http.MethodGet, "/proxy/cargo", nil)
	require.Equal(t, breaker.StateOpen, rl.Status().CircuitState)

	w := do(r, http.MethodPost, "/admin/queue/reset", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, breaker.StateClosed, rl.Status().CircuitState)
}

func TestWriteProxyErrorRateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/proxy/cargo", nil)

	h := &Handlers{log: zap.NewNop()}
	h.writeProxyError(c, http.MethodGet, "/cargo", queue.RateLimited(errors.New("slow down"), 3*time.Second))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3", w.Header().Get("Retry-After"))
}

func TestPriorityHeaderParsing(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, tt := range []struct {
		header string
		want   int
	}{
		{"", 0},
		{"5", 5},
		{"-2", -2},
		{"urgent", 0},
	} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/proxy/cargo", nil)
		if tt.header != "" {
			c.Request.Header.Set(priorityHeader, tt.header)
		}
		assert.Equal(t, tt.want, priorityFrom(c), "header %q", tt.header)
	}
}

func TestProxyHeaderStripsHopByHop(t *testing.T) {
	in := http.Header{
		"Authorization":    {"Bearer tok"},
		"Connection":       {"keep-alive"},
		"Content-Length":   {"42"},
		"X-Relay-Priority": {"9"},
		"X-Tenant":         {"abc"},
	}

	out := proxyHeader(in)

	assert.Equal(t, "Bearer tok", out.Get("Authorization"))
	assert.Equal(t, "abc", out.Get("X-Tenant"))
	assert.Empty(t, out.Get("Connection"))
	assert.Empty(t, out.Get("Content-Length"))
	assert.Empty(t, out.Get("X-Relay-Priority"))
}
