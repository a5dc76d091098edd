// Package status publishes immutable queue-status snapshots to subscribers
// (UI widgets, the websocket stream). Delivery is coalescing and never
// blocks the publisher: a slow subscriber sees the latest snapshot, not
// every intermediate one.
package status
