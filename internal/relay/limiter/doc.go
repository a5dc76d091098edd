// Package limiter gates outbound dispatch cadence.
//
// It combines a token bucket (minimum spacing between requests, via
// golang.org/x/time/rate) with server-signaled cool-down windows: when the
// upstream answers 429 with a Retry-After, the limiter blocks every dispatch
// until the window elapses and reports the window to status consumers.
package limiter
