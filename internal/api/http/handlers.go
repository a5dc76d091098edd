package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/freightdesk/relay/internal/relay"
	"github.com/freightdesk/relay/internal/relay/cache"
	"github.com/freightdesk/relay/internal/relay/queue"
	"github.com/freightdesk/relay/internal/transport"
)

// maxProxyBody bounds buffered request bodies.
const maxProxyBody = 10 << 20

// priorityHeader lets callers bump a request ahead of queued work.
const priorityHeader = "X-Relay-Priority"

// Forwarder performs one upstream attempt. Satisfied by transport.Client.
type Forwarder interface {
	Forward(ctx context.Context, method, path string, query url.Values, header http.Header, body []byte) (*transport.Response, error)
}

// Handlers contains the daemon's HTTP handlers.
type Handlers struct {
	relay    *relay.Relay
	upstream Forwarder
	log      *zap.Logger
	started  time.Time
}

// NewHandlers creates HTTP handlers.
func NewHandlers(rl *relay.Relay, upstream Forwarder, log *zap.Logger) *Handlers {
	return &Handlers{
		relay:    rl,
		upstream: upstream,
		log:      log,
		started:  time.Now(),
	}
}

// Root handles the root endpoint.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "relayd",
		"status":  "running",
	})
}

// Health handles liveness checks.
func (h *Handlers) Health(c *gin.Context) {
	st := h.relay.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"circuit_state":  st.CircuitState,
		"queue_length":   st.QueueLength,
	})
}

// Status returns the full relay snapshot.
func (h *Handlers) Status(c *gin.Context) {
	st := h.relay.Status()
	c.JSON(http.StatusOK, gin.H{
		"circuit_state":   st.CircuitState,
		"queue_length":    st.QueueLength,
		"is_processing":   st.IsProcessing,
		"is_loading":      st.IsLoading(),
		"rate_limit_info": st.RateLimitInfo,
	})
}

// Proxy forwards a request to the upstream through the relay.
func (h *Handlers) Proxy(c *gin.Context) {
	path := c.Param("path")
	method := c.Request.Method

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxProxyBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	query := c.Request.URL.Query()
	header := proxyHeader(c.Request.Header)

	req := relay.Request{
		Priority: priorityFrom(c),
		Execute: func(ctx context.Context) (any, error) {
			return h.upstream.Forward(ctx, method, path, query, header, body)
		},
	}
	if method == http.MethodGet {
		req.CacheKey = cacheKeyFor(method, path, query)
	}

	v, err := h.relay.Do(c.Request.Context(), req)
	if err != nil {
		h.writeProxyError(c, method, path, err)
		return
	}

	resp := v.(*transport.Response)
	c.Data(resp.Status, resp.Header.Get("Content-Type"), resp.Body)
}

// ClearCache drops all cached responses.
func (h *Handlers) ClearCache(c *gin.Context) {
	h.relay.ClearCache()
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// ResetQueue rejects pending requests and forces the circuit closed.
func (h *Handlers) ResetQueue(c *gin.Context) {
	h.relay.Reset()
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

func (h *Handlers) writeProxyError(c *gin.Context, method, path string, err error) {
	h.log.Warn("proxy request failed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Error(err),
	)

	var (
		cerr *queue.ClassifiedError
		uerr *transport.UpstreamError
	)
	switch {
	case errors.Is(err, relay.ErrCircuitOpen):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "upstream unavailable",
			"circuit": "open",
		})
	case errors.Is(err, relay.ErrQueueReset):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue was reset"})
	case errors.Is(err, relay.ErrQueueClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
	case errors.Is(err, relay.ErrRetriesExhausted):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case errors.As(err, &cerr) && cerr.Kind == queue.KindRateLimited:
		if cerr.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(cerr.RetryAfter.Seconds())))
		}
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request cancelled"})
	case errors.As(err, &uerr):
		// The upstream answered with a definitive client error; relay its
		// own status and body rather than masking it as a gateway failure.
		c.Data(uerr.Response.Status, uerr.Response.Header.Get("Content-Type"), uerr.Response.Body)
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

// proxyHeader copies forwardable headers, dropping hop-by-hop fields and
// the daemon's own control header.
func proxyHeader(in http.Header) http.Header {
	out := make(http.Header, len(in))
	for k, vs := range in {
		switch http.CanonicalHeaderKey(k) {
		case "Connection", "Keep-Alive", "Transfer-Encoding", "Upgrade",
			"Content-Length", "Accept-Encoding", priorityHeader:
			continue
		}
		out[k] = vs
	}
	return out
}

func priorityFrom(c *gin.Context) int {
	v := c.GetHeader(priorityHeader)
	if v == "" {
		return 0
	}
	p, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return p
}

func cacheKeyFor(method, path string, query url.Values) string {
	params := make(map[string]any, len(query))
	for k, vs := range query {
		if len(vs) == 1 {
			params[k] = vs[0]
		} else {
			params[k] = vs
		}
	}
	return cache.Key(method, path, params)
}
