// Package middleware provides HTTP middleware for the relay daemon's
// own API surface.
//
// The daemon fronts a rate-limited upstream, so its admin endpoints get
// their own per-client limiter: a misbehaving dashboard polling /status
// must not be able to starve the proxy path.
package middleware
