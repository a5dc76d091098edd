// Package main is the entry point for relayd, the throttling sidecar
// that fronts a rate-limited upstream API.
//
// All application traffic to the upstream is funneled through the
// daemon's /proxy endpoint, which serializes calls through a single
// queue with caching, a circuit breaker, and rate-limit cool-downs.
// Queue and circuit state are observable via /status, the /stream
// WebSocket, and Prometheus metrics on /metrics.
//
// Configuration is environment-driven (12-factor); see the config
// package for the full variable list. The -dev flag switches to
// colored debug logging.
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown
package main
