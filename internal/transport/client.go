package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/freightdesk/relay/internal/infrastructure/config"
	"github.com/freightdesk/relay/internal/relay/queue"
)

// fallbackRetryAfter is assumed when a 429 arrives without a
// Retry-After header.
const fallbackRetryAfter = time.Second

// Response is one upstream reply, body fully read.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Duration time.Duration
}

// UpstreamError is a non-retryable upstream reply. It keeps the full
// Response so callers can relay the upstream's own status and body
// instead of masking them behind a gateway error.
type UpstreamError struct {
	Method     string
	Path       string
	StatusText string
	Response   *Response
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s %s: %s", e.Method, e.Path, e.StatusText)
}

// Client performs single-attempt calls against the upstream API.
type Client struct {
	resty *resty.Client
	log   *zap.Logger
}

// New builds an upstream client. Transport-level retries are disabled;
// the queue decides if and when an attempt is repeated.
func New(cfg config.UpstreamConfig, log *zap.Logger) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil

	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "relayd/1.0")
	rc.SetTransport(retryClient.HTTPClient.Transport)

	return &Client{resty: rc, log: log}
}

// Forward sends one request to the upstream and classifies the result.
// A non-nil error is already tagged for the queue's retry policy.
func (c *Client) Forward(ctx context.Context, method, path string, query url.Values, header http.Header, body []byte) (*Response, error) {
	req := c.resty.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	if len(header) > 0 {
		req.SetHeaderMultiValues(header)
	}
	if len(body) > 0 {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.log.Warn("upstream call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, queue.Transient(fmt.Errorf("upstream %s %s: %w", method, path, err))
	}

	out := &Response{
		Status:   resp.StatusCode(),
		Header:   resp.Header(),
		Body:     resp.Body(),
		Duration: resp.Time(),
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		retryAfter := retryAfterWindow(resp.RawResponse)
		c.log.Warn("upstream rate limited",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("retry_after", retryAfter),
		)
		return out, queue.RateLimited(
			fmt.Errorf("upstream %s %s: %s", method, path, resp.Status()),
			retryAfter,
		)
	case resp.StatusCode() >= http.StatusInternalServerError:
		return out, queue.Transient(fmt.Errorf("upstream %s %s: %s", method, path, resp.Status()))
	case resp.StatusCode() >= http.StatusBadRequest:
		return out, queue.Fatal(&UpstreamError{
			Method:     method,
			Path:       path,
			StatusText: resp.Status(),
			Response:   out,
		})
	}

	return out, nil
}

// retryAfterWindow extracts the server-requested cool-down from a 429
// response, reusing retryablehttp's Retry-After parsing.
func retryAfterWindow(resp *http.Response) time.Duration {
	if resp == nil {
		return fallbackRetryAfter
	}
	if d := retryablehttp.DefaultBackoff(0, time.Hour, 0, resp); d > 0 {
		return d
	}
	return fallbackRetryAfter
}
