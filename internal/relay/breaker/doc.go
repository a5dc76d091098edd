/*
Package breaker provides a circuit breaker for graceful degradation of the
upstream API.

# Overview

The breaker tracks consecutive failures and fails fast while the upstream is
considered unhealthy, so the relay never floods a struggling backend and the
UI can surface the outage instead of cascading errors.

# States

- Closed: normal operation, requests pass through
- Open: upstream unavailable, requests are refused immediately
- Half-Open: testing recovery, a single probe is allowed through

# Pattern

	Closed --[failures]-> Open --[cooldown]-> Half-Open --[success]-> Closed
	                                             |
	                                        [failure]
	                                             |
	                                             v
	                                           Open

Repeated trips grow the cooldown (doubling, capped) so a persistently failing
upstream is probed less aggressively over time.

# Usage

	b := breaker.New("upstream", breaker.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts breaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	done, err := b.Allow()
	if err != nil {
		return err // circuit open, fail fast
	}
	result, err := call()
	if err != nil {
		done(breaker.OutcomeFailure)
	} else {
		done(breaker.OutcomeSuccess)
	}
*/
package breaker
