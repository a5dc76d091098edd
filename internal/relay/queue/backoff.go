package queue

import "time"

// BackoffPolicy computes retry delays. Delay is a pure function of the
// attempt number and error kind, so retry behavior is unit-testable in
// isolation.
type BackoffPolicy struct {
	// BaseWait is the delay before the first transient retry.
	BaseWait time.Duration
	// MaxWait caps exponential growth.
	MaxWait time.Duration
	// MaxRetries bounds retries per item; attempt numbers start at zero.
	MaxRetries int
}

// DefaultBackoff returns the production retry policy.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		BaseWait:   time.Second,
		MaxWait:    30 * time.Second,
		MaxRetries: 3,
	}
}

// Delay returns the wait before retry number attempt (zero-based) for the
// given kind, and whether a retry should happen at all.
//
// Rate-limited failures return a zero delay: the limiter's cool-down window
// already gates the re-dispatch, so the item re-enters the queue
// immediately and blocks at the slot wait.
func (p BackoffPolicy) Delay(attempt int, kind ErrorKind) (time.Duration, bool) {
	if kind == KindFatal {
		return 0, false
	}
	if attempt >= p.MaxRetries {
		return 0, false
	}
	if kind == KindRateLimited {
		return 0, true
	}

	d := p.BaseWait
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxWait {
			return p.MaxWait, true
		}
	}
	if d > p.MaxWait {
		d = p.MaxWait
	}
	return d, true
}
