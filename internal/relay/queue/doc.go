/*
Package queue serializes outbound API calls into a single-worker dispatch
queue.

# Overview

The queue guarantees at most one in-flight dispatch at a time, which is what
makes the limiter's spacing invariant enforceable without coordination.
Pending items dispatch FIFO unless a priority override is set, in which case
the highest-priority eligible item goes first; an item already dispatched is
never overtaken.

Before each dispatch the queue asks the circuit breaker for permission and
waits for a limiter slot. Failures are classified (rate-limited, transient,
fatal) and retried with exponential backoff up to a bounded attempt count;
only terminal outcomes reach the caller.

# Ordering

	FIFO among equal priority
	higher priority overtakes pending, never in-flight
	cache hits bypass the queue entirely
*/
package queue
