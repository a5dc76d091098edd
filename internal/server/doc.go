// Package server wires the relay daemon's HTTP surface: the relay
// itself, the upstream transport, REST handlers, the WebSocket status
// stream, metrics, and middleware.
package server
