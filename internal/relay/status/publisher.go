package status

import (
	"sync"

	"github.com/google/uuid"

	"github.com/freightdesk/relay/internal/relay/breaker"
	"github.com/freightdesk/relay/internal/relay/limiter"
)

// QueueStatus is a read-only projection of the relay's state, recomputed
// on every change. Consumers must never mutate it.
type QueueStatus struct {
	CircuitState  breaker.State `json:"circuit_state"`
	QueueLength   int           `json:"queue_length"`
	IsProcessing  bool          `json:"is_processing"`
	RateLimitInfo limiter.Info  `json:"rate_limit_info"`
}

// IsLoading reports whether any work is pending or in flight. This is the
// derived field UI consumers key their spinners on.
func (s QueueStatus) IsLoading() bool {
	return s.IsProcessing || s.QueueLength > 0
}

// Publisher fans QueueStatus snapshots out to subscribers.
type Publisher struct {
	mu      sync.RWMutex
	subs    map[uuid.UUID]*subscriber
	current QueueStatus
	closed  bool
}

type subscriber struct {
	ch   chan QueueStatus
	done chan struct{}
}

// NewPublisher creates an empty publisher.
func NewPublisher() *Publisher {
	return &Publisher{
		subs: make(map[uuid.UUID]*subscriber),
	}
}

// Subscribe registers fn for status updates and returns an unsubscribe
// handle. fn runs on a dedicated goroutine per subscriber; the publisher
// is never blocked by a slow callback. The current snapshot is delivered
// immediately.
func (p *Publisher) Subscribe(fn func(QueueStatus)) func() {
	sub := &subscriber{
		ch:   make(chan QueueStatus, 1),
		done: make(chan struct{}),
	}
	id := uuid.New()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return func() {}
	}
	p.subs[id] = sub
	sub.ch <- p.current
	p.mu.Unlock()

	go func() {
		for {
			select {
			case st := <-sub.ch:
				fn(st)
			case <-sub.done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(sub.done)
		})
	}
}

// Publish records st as the current snapshot and delivers it to every
// subscriber, coalescing with any undelivered previous snapshot.
func (p *Publisher) Publish(st QueueStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.current = st

	for _, sub := range p.subs {
		select {
		case sub.ch <- st:
		default:
			// Replace the stale undelivered snapshot with the newest.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- st:
			default:
			}
		}
	}
}

// Current returns the most recently published snapshot.
func (p *Publisher) Current() QueueStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Close detaches all subscribers and drops future publishes.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, sub := range p.subs {
		delete(p.subs, id)
		close(sub.done)
	}
}
