// Package http provides the relay daemon's HTTP handlers.
//
// Endpoints:
//   - GET  /health             liveness plus a condensed relay snapshot
//   - GET  /status             full queue/circuit/rate-limit snapshot
//   - ANY  /proxy/*path        forward a request through the relay
//   - POST /admin/cache/clear  drop all cached responses
//   - POST /admin/queue/reset  reject pending work and close the circuit
//
// Proxied GETs are cached by method, path, and query. The optional
// X-Relay-Priority header lets urgent requests overtake queued ones.
package http
