package limiter

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Info describes a server-imposed rate-limit window. IsActive implies
// RetryAfter is in the future; the window clears once RetryAfter elapses
// or a subsequent success arrives.
type Info struct {
	IsActive   bool      `json:"is_active"`
	Message    string    `json:"message,omitempty"`
	RetryAfter time.Time `json:"retry_after,omitempty"`
}

// MarshalJSON drops RetryAfter while no window is active; omitempty has
// no effect on a zero time.Time.
func (i Info) MarshalJSON() ([]byte, error) {
	out := struct {
		IsActive   bool       `json:"is_active"`
		Message    string     `json:"message,omitempty"`
		RetryAfter *time.Time `json:"retry_after,omitempty"`
	}{IsActive: i.IsActive, Message: i.Message}
	if !i.RetryAfter.IsZero() {
		out.RetryAfter = &i.RetryAfter
	}
	return json.Marshal(out)
}

// Limiter enforces a minimum interval between dispatches and honors
// upstream cool-down windows.
type Limiter struct {
	bucket *rate.Limiter

	mu       sync.Mutex
	info     Info
	onChange func()
}

// New creates a limiter with the given minimum inter-request interval.
// A non-positive interval disables spacing.
func New(minInterval time.Duration) *Limiter {
	bucket := rate.NewLimiter(rate.Inf, 0)
	if minInterval > 0 {
		bucket = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return &Limiter{bucket: bucket}
}

// OnChange registers a callback fired whenever the rate-limit window
// activates or clears. Must be set before the limiter is shared.
func (l *Limiter) OnChange(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = fn
}

// WaitForSlot blocks until a dispatch slot is available: first until any
// active cool-down window elapses, then until the spacing interval allows
// another request. This is the single suspension point before dispatch.
func (l *Limiter) WaitForSlot(ctx context.Context) error {
	l.mu.Lock()
	deadline := l.info.RetryAfter
	active := l.info.IsActive
	l.mu.Unlock()

	if active {
		if wait := time.Until(deadline); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		l.clearIfElapsed()
	}

	return l.bucket.Wait(ctx)
}

// NoteRateLimited records an upstream throttle signal. The retryAfter
// duration comes from the Retry-After header, already converted to a
// time.Duration at the transport boundary.
func (l *Limiter) NoteRateLimited(message string, retryAfter time.Duration) {
	if retryAfter <= 0 {
		return
	}

	l.mu.Lock()
	l.info = Info{
		IsActive:   true,
		Message:    message,
		RetryAfter: time.Now().Add(retryAfter),
	}
	fn := l.onChange
	l.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// NoteSuccess clears any active window after a successful dispatch.
func (l *Limiter) NoteSuccess() {
	l.mu.Lock()
	wasActive := l.info.IsActive
	l.info = Info{}
	fn := l.onChange
	l.mu.Unlock()

	if wasActive && fn != nil {
		fn()
	}
}

// Info returns the current rate-limit window. An elapsed window reads as
// inactive even before the next dispatch clears it. Info is called from
// inside callers' locks and must never fire OnChange.
func (l *Limiter) Info() Info {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.info.IsActive && !l.info.RetryAfter.After(time.Now()) {
		l.info = Info{}
	}
	return l.info
}

func (l *Limiter) clearIfElapsed() {
	l.mu.Lock()
	if l.info.IsActive && !l.info.RetryAfter.After(time.Now()) {
		l.info = Info{}
		fn := l.onChange
		l.mu.Unlock()
		if fn != nil {
			fn()
		}
		return
	}
	l.mu.Unlock()
}
