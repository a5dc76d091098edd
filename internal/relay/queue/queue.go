package queue

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/freightdesk/relay/internal/infrastructure/monitoring"
	"github.com/freightdesk/relay/internal/relay/breaker"
	"github.com/freightdesk/relay/internal/relay/cache"
	"github.com/freightdesk/relay/internal/relay/limiter"
	"github.com/freightdesk/relay/internal/shared/id"
)

var (
	ErrQueueReset       = errors.New("request queue reset")
	ErrQueueClosed      = errors.New("request queue closed")
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Result is the terminal outcome of a queued request.
type Result struct {
	Value any
	Err   error
}

// Item is a queued request. The queue owns it exclusively for its lifetime;
// it settles exactly once.
type Item struct {
	ID         id.ItemID
	Execute    func(context.Context) (any, error)
	CacheKey   string
	CacheTTL   time.Duration
	Priority   int
	EnqueuedAt time.Time

	ctx        context.Context
	retryCount int
	seq        uint64
	result     chan Result
}

// Config wires the queue's collaborators.
type Config struct {
	Breaker *breaker.Breaker
	Limiter *limiter.Limiter
	Cache   *cache.Cache
	Backoff BackoffPolicy
	Log     *zap.Logger
	Metrics *monitoring.Metrics
	// OnChange fires on every enqueue, dispatch, and settle so the status
	// snapshot can be recomputed.
	OnChange func()
}

// Queue dispatches items one at a time in priority-then-FIFO order.
type Queue struct {
	cfg Config

	mu             sync.Mutex
	pending        itemHeap
	delayed        map[*Item]*time.Timer
	byKey          map[string]*Item
	joiners        map[*Item][]*Item
	seq            uint64
	processing     bool
	closed         bool
	cancelInFlight context.CancelFunc

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// New creates the queue and starts its drain worker.
func New(cfg Config) *Queue {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Backoff == (BackoffPolicy{}) {
		cfg.Backoff = DefaultBackoff()
	}

	q := &Queue{
		cfg:     cfg,
		delayed: make(map[*Item]*time.Timer),
		byKey:   make(map[string]*Item),
		joiners: make(map[*Item][]*Item),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue accepts an item and returns the channel its terminal result will
// arrive on. A valid cache entry for the item's key resolves immediately
// without touching the queue.
func (q *Queue) Enqueue(ctx context.Context, item *Item) <-chan Result {
	if ctx == nil {
		ctx = context.Background()
	}
	item.ctx = ctx
	item.result = make(chan Result, 1)
	if item.ID == "" {
		item.ID = id.NewItemID()
	}
	item.EnqueuedAt = time.Now()

	if item.CacheKey != "" && q.cfg.Cache != nil {
		if value, ok := q.cfg.Cache.Get(item.CacheKey); ok {
			q.cfg.Log.Debug("cache hit", zap.String("item", item.ID.String()), zap.String("key", item.CacheKey))
			item.result <- Result{Value: value}
			return item.result
		}
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		item.result <- Result{Err: ErrQueueClosed}
		return item.result
	}
	if item.CacheKey != "" {
		// Single-flight: a request already pending for this key absorbs
		// the newcomer, which settles with the same result.
		if primary, ok := q.byKey[item.CacheKey]; ok {
			q.joiners[primary] = append(q.joiners[primary], item)
			q.mu.Unlock()
			q.cfg.Log.Debug("joined in-flight request",
				zap.String("item", item.ID.String()),
				zap.String("key", item.CacheKey),
			)
			return item.result
		}
		q.byKey[item.CacheKey] = item
	}
	item.seq = q.seq
	q.seq++
	heap.Push(&q.pending, item)
	q.mu.Unlock()

	q.cfg.Log.Debug("enqueued",
		zap.String("item", item.ID.String()),
		zap.Int("priority", item.Priority),
	)
	q.notify()
	q.wakeup()
	return item.result
}

// Len returns the number of items awaiting dispatch, including those
// parked on a retry delay.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len() + len(q.delayed)
}

// IsProcessing reports whether a dispatch is currently in flight.
func (q *Queue) IsProcessing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing
}

// Reset rejects every pending item with ErrQueueReset, including items
// parked on a retry delay. The in-flight dispatch, if any, is not aborted.
func (q *Queue) Reset() {
	q.mu.Lock()
	dropped := make([]*Item, 0, q.pending.Len()+len(q.delayed))
	for q.pending.Len() > 0 {
		dropped = append(dropped, heap.Pop(&q.pending).(*Item))
	}
	for item, timer := range q.delayed {
		timer.Stop()
		delete(q.delayed, item)
		dropped = append(dropped, item)
	}
	q.mu.Unlock()

	for _, item := range dropped {
		q.settle(item, Result{Err: ErrQueueReset})
	}
	q.cfg.Log.Info("queue reset", zap.Int("dropped", len(dropped)))
	q.notify()
}

// Close stops the worker and rejects everything still pending. The
// in-flight dispatch is cancelled via its context.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	cancel := q.cancelInFlight
	q.mu.Unlock()

	close(q.stop)
	if cancel != nil {
		cancel()
	}
	<-q.done

	q.mu.Lock()
	dropped := make([]*Item, 0, q.pending.Len()+len(q.delayed))
	for q.pending.Len() > 0 {
		dropped = append(dropped, heap.Pop(&q.pending).(*Item))
	}
	for item, timer := range q.delayed {
		timer.Stop()
		delete(q.delayed, item)
		dropped = append(dropped, item)
	}
	q.mu.Unlock()

	for _, item := range dropped {
		q.settle(item, Result{Err: ErrQueueClosed})
	}
}

// run is the single drain worker: it guarantees at most one in-flight
// dispatch at a time.
func (q *Queue) run() {
	defer close(q.done)
	for {
		item := q.next()
		if item == nil {
			return
		}
		q.dispatch(item)

		q.mu.Lock()
		q.processing = false
		q.cancelInFlight = nil
		q.mu.Unlock()
		q.notify()
	}
}

// next blocks until an item is eligible or the queue is closed.
func (q *Queue) next() *Item {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil
		}
		if q.pending.Len() > 0 {
			item := heap.Pop(&q.pending).(*Item)
			q.processing = true
			q.mu.Unlock()
			q.notify()
			return item
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-q.stop:
			return nil
		}
	}
}

func (q *Queue) dispatch(item *Item) {
	if err := item.ctx.Err(); err != nil {
		q.settle(item, Result{Err: err})
		return
	}

	// Retried items keep their original caller context; only the current
	// attempt is cancellable on Close.
	ctx, cancel := context.WithCancel(item.ctx)
	defer cancel()
	q.mu.Lock()
	q.cancelInFlight = cancel
	q.mu.Unlock()

	settleBreaker, err := q.cfg.Breaker.Allow()
	if err != nil {
		if errors.Is(err, breaker.ErrProbeInFlight) {
			// Another probe is mid-flight; park the item briefly.
			q.requeueAfter(item, 50*time.Millisecond)
			return
		}
		q.cfg.Log.Warn("dispatch refused", zap.String("item", item.ID.String()), zap.Error(err))
		q.settle(item, Result{Err: err})
		return
	}

	if err := q.cfg.Limiter.WaitForSlot(ctx); err != nil {
		settleBreaker(breaker.OutcomeIgnore)
		q.settle(item, Result{Err: err})
		return
	}

	if q.cfg.Metrics != nil && item.retryCount == 0 {
		q.cfg.Metrics.WaitDuration.Observe(time.Since(item.EnqueuedAt).Seconds())
	}

	start := time.Now()
	value, err := item.Execute(ctx)
	if err == nil {
		settleBreaker(breaker.OutcomeSuccess)
		q.cfg.Limiter.NoteSuccess()
		if q.cfg.Metrics != nil {
			q.cfg.Metrics.RecordDispatch("success", time.Since(start))
		}
		if item.CacheKey != "" && q.cfg.Cache != nil {
			q.cfg.Cache.Set(item.CacheKey, value, item.CacheTTL)
		}
		q.cfg.Log.Debug("dispatched",
			zap.String("item", item.ID.String()),
			zap.Duration("took", time.Since(start)),
			zap.Int("attempt", item.retryCount),
		)
		q.settle(item, Result{Value: value})
		return
	}

	cerr := Classify(err)
	if q.cfg.Metrics != nil {
		q.cfg.Metrics.RecordDispatch(cerr.Kind.String(), time.Since(start))
		if cerr.Kind == KindRateLimited {
			q.cfg.Metrics.RateLimitHits.Inc()
		}
	}
	switch cerr.Kind {
	case KindRateLimited:
		// Rate limiting signals backend health policy, not backend
		// failure: the breaker ignores it.
		settleBreaker(breaker.OutcomeIgnore)
		q.cfg.Limiter.NoteRateLimited(cerr.Err.Error(), cerr.RetryAfter)
	default:
		settleBreaker(breaker.OutcomeFailure)
	}

	delay, retry := q.cfg.Backoff.Delay(item.retryCount, cerr.Kind)
	if !retry {
		if cerr.Kind != KindFatal {
			q.settle(item, Result{Err: fmt.Errorf("%w: %w", ErrRetriesExhausted, cerr)})
			return
		}
		q.settle(item, Result{Err: cerr})
		return
	}

	item.retryCount++
	if q.cfg.Metrics != nil {
		q.cfg.Metrics.RecordRetry(cerr.Kind.String())
	}
	q.cfg.Log.Debug("retry scheduled",
		zap.String("item", item.ID.String()),
		zap.String("kind", cerr.Kind.String()),
		zap.Duration("delay", delay),
		zap.Int("attempt", item.retryCount),
	)
	q.requeueAfter(item, delay)
}

func (q *Queue) requeueAfter(item *Item, delay time.Duration) {
	if delay <= 0 {
		q.requeue(item)
		return
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.settle(item, Result{Err: ErrQueueClosed})
		return
	}
	q.delayed[item] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		if _, ok := q.delayed[item]; !ok {
			q.mu.Unlock()
			return
		}
		delete(q.delayed, item)
		q.mu.Unlock()
		q.requeue(item)
	})
	q.mu.Unlock()
	q.notify()
}

func (q *Queue) requeue(item *Item) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.settle(item, Result{Err: ErrQueueClosed})
		return
	}
	heap.Push(&q.pending, item)
	q.mu.Unlock()
	q.notify()
	q.wakeup()
}

func (q *Queue) settle(item *Item, r Result) {
	q.mu.Lock()
	joined := q.joiners[item]
	delete(q.joiners, item)
	if item.CacheKey != "" && q.byKey[item.CacheKey] == item {
		delete(q.byKey, item.CacheKey)
	}
	q.mu.Unlock()

	item.result <- r
	for _, j := range joined {
		j.result <- r
	}
}

func (q *Queue) notify() {
	if q.cfg.OnChange != nil {
		q.cfg.OnChange()
	}
}

func (q *Queue) wakeup() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// itemHeap orders by priority (higher first), then enqueue sequence.
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(*Item)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
