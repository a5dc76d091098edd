/*
Package relay is the resilience layer between the application and a
rate-limited backend API.

# Overview

Every outbound call goes through one Relay, which composes:

  - a response cache (short-TTL memoization by request identity)
  - a single-worker request queue (priority-then-FIFO, one in-flight call)
  - a circuit breaker (fail fast while the upstream is down)
  - a rate limiter (minimum spacing plus server-signaled cool-downs)
  - a status publisher (observable snapshots for UI widgets)

A Relay is an explicit long-lived object constructed once at startup and
injected where needed; tests build their own instances.

# Usage

	rl := relay.New(relay.Options{MinInterval: 200 * time.Millisecond})
	defer rl.Close()

	result, err := rl.Do(ctx, relay.Request{
		CacheKey: cache.Key("GET", "/cargo", params),
		Execute: func(ctx context.Context) (any, error) {
			return client.ListCargo(ctx, params)
		},
	})

	unsubscribe := rl.Subscribe(func(st relay.QueueStatus) {
		render(st)
	})
	defer unsubscribe()
*/
package relay
