// Package ws streams relay status snapshots over WebSocket.
//
// Each connection subscribes to the relay's publisher and receives a
// status frame on every change, starting with the current snapshot.
// Client messages other than ping are ignored.
package ws
