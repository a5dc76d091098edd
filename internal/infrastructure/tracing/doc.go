// Package tracing provides lightweight request tracing for the relay
// daemon's HTTP surface.
//
// Each request gets a ULID trace ID, propagated via X-Trace-ID and
// echoed on the response. Completed spans are logged structured, which
// is enough to correlate a slow /proxy call with the queue and
// upstream log lines it produced.
package tracing
