package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/freightdesk/relay/internal/infrastructure/config"
	"github.com/freightdesk/relay/internal/infrastructure/logging"
	"github.com/freightdesk/relay/internal/infrastructure/monitoring"
	"github.com/freightdesk/relay/internal/relay/breaker"
	"github.com/freightdesk/relay/internal/relay/cache"
	"github.com/freightdesk/relay/internal/relay/limiter"
	"github.com/freightdesk/relay/internal/relay/queue"
	"github.com/freightdesk/relay/internal/relay/status"
)

// Re-exported types so consumers deal with one package.
type (
	QueueStatus   = status.QueueStatus
	RateLimitInfo = limiter.Info
	CircuitState  = breaker.State
)

var (
	ErrCircuitOpen      = breaker.ErrCircuitOpen
	ErrQueueReset       = queue.ErrQueueReset
	ErrQueueClosed      = queue.ErrQueueClosed
	ErrRetriesExhausted = queue.ErrRetriesExhausted
)

// Request describes one outbound call.
type Request struct {
	// Execute performs the call. It runs on the queue's worker, at most
	// one at a time.
	Execute func(context.Context) (any, error)
	// CacheKey, when set, enables memoization and single-flight
	// coalescing for this request identity.
	CacheKey string
	// CacheTTL overrides the relay default for this entry.
	CacheTTL time.Duration
	// Priority lets urgent requests overtake pending ones. Zero is normal.
	Priority int
}

// Options tunes the relay. Zero values fall back to production defaults
// mirroring config.RelayConfig, except MinInterval: zero disables
// dispatch spacing entirely (the daemon's config layer supplies its own
// 200ms default).
type Options struct {
	MinInterval   time.Duration
	TripThreshold uint32
	Cooldown      time.Duration
	MaxCooldown   time.Duration
	FailureWindow time.Duration
	CacheTTL      time.Duration
	CacheSweep    time.Duration
	MaxRetries    int
	RetryBaseWait time.Duration
	RetryMaxWait  time.Duration

	Log     *logging.Logger
	Metrics *monitoring.Metrics
}

// OptionsFromConfig maps daemon configuration onto relay options.
func OptionsFromConfig(cfg config.RelayConfig) Options {
	return Options{
		MinInterval:   cfg.MinInterval,
		TripThreshold: cfg.TripThreshold,
		Cooldown:      cfg.Cooldown,
		MaxCooldown:   cfg.MaxCooldown,
		FailureWindow: cfg.FailureWindow,
		CacheTTL:      cfg.CacheTTL,
		CacheSweep:    cfg.CacheSweep,
		MaxRetries:    cfg.MaxRetries,
		RetryBaseWait: cfg.RetryBaseWait,
		RetryMaxWait:  cfg.RetryMaxWait,
	}
}

// Relay mediates all outbound API calls. It owns its breaker, limiter,
// cache, and queue exclusively; the only mutating operations besides Do
// are ClearCache and Reset.
type Relay struct {
	breaker   *breaker.Breaker
	limiter   *limiter.Limiter
	cache     *cache.Cache
	queue     *queue.Queue
	publisher *status.Publisher

	log     *zap.Logger
	metrics *monitoring.Metrics
}

// New wires a relay from options and starts its worker.
func New(opts Options) *Relay {
	if opts.TripThreshold == 0 {
		opts.TripThreshold = 5
	}
	if opts.Cooldown == 0 {
		opts.Cooldown = 30 * time.Second
	}
	if opts.MaxCooldown == 0 {
		opts.MaxCooldown = 5 * time.Minute
	}
	if opts.FailureWindow == 0 {
		opts.FailureWindow = time.Minute
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBaseWait == 0 {
		opts.RetryBaseWait = time.Second
	}
	if opts.RetryMaxWait == 0 {
		opts.RetryMaxWait = 30 * time.Second
	}

	var log *zap.Logger
	if opts.Log != nil {
		log = opts.Log.Logger
	} else {
		log = zap.NewNop()
	}

	r := &Relay{
		publisher: status.NewPublisher(),
		log:       log,
		metrics:   opts.Metrics,
	}

	r.breaker = breaker.New("upstream", breaker.Settings{
		MaxRequests: 1,
		Interval:    opts.FailureWindow,
		Timeout:     opts.Cooldown,
		MaxTimeout:  opts.MaxCooldown,
		ReadyToTrip: func(counts breaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.TripThreshold
		},
		OnStateChange: func(name string, from, to breaker.State) {
			log.Warn("circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if r.metrics != nil && to == breaker.StateOpen {
				r.metrics.CircuitTrips.Inc()
			}
			// The breaker holds its own lock while firing this callback,
			// so the snapshot uses the reported state instead of asking
			// the breaker again.
			r.publishWithState(to)
		},
	})

	r.limiter = limiter.New(opts.MinInterval)
	r.limiter.OnChange(r.publish)

	r.cache = cache.New(opts.CacheTTL)
	if opts.CacheSweep > 0 {
		r.cache.StartJanitor(opts.CacheSweep)
	}

	r.queue = queue.New(queue.Config{
		Breaker: r.breaker,
		Limiter: r.limiter,
		Cache:   r.cache,
		Backoff: queue.BackoffPolicy{
			BaseWait:   opts.RetryBaseWait,
			MaxWait:    opts.RetryMaxWait,
			MaxRetries: opts.MaxRetries,
		},
		Log:      log,
		Metrics:  opts.Metrics,
		OnChange: r.publish,
	})

	r.publish()
	return r
}

// Do runs a request through the relay and blocks until it settles or ctx
// is done. The returned error is terminal: retries and backoff already
// happened inside the queue.
func (r *Relay) Do(ctx context.Context, req Request) (any, error) {
	if req.CacheKey != "" && r.metrics != nil {
		if _, ok := r.cache.Get(req.CacheKey); ok {
			r.metrics.CacheHits.Inc()
		} else {
			r.metrics.CacheMisses.Inc()
		}
	}

	ch := r.queue.Enqueue(ctx, &queue.Item{
		Execute:  req.Execute,
		CacheKey: req.CacheKey,
		CacheTTL: req.CacheTTL,
		Priority: req.Priority,
	})

	select {
	case res := <-ch:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status returns the current snapshot.
func (r *Relay) Status() QueueStatus {
	return r.snapshot()
}

// Subscribe registers a status observer; the returned function detaches it.
func (r *Relay) Subscribe(fn func(QueueStatus)) func() {
	return r.publisher.Subscribe(fn)
}

// ClearCache empties the response cache. Queue and circuit state are
// untouched: the next identical-key request hits the network.
func (r *Relay) ClearCache() {
	r.cache.Clear()
	r.log.Info("cache cleared")
	r.publish()
}

// Reset rejects all pending requests and forces the circuit closed. The
// cache is untouched.
func (r *Relay) Reset() {
	r.queue.Reset()
	r.breaker.ForceReset()
	r.publish()
}

// Close shuts the relay down: pending requests are rejected and the
// worker stops.
func (r *Relay) Close() {
	r.queue.Close()
	r.cache.Close()
	r.publisher.Close()
}

func (r *Relay) snapshot() QueueStatus {
	return QueueStatus{
		CircuitState:  r.breaker.State(),
		QueueLength:   r.queue.Len(),
		IsProcessing:  r.queue.IsProcessing(),
		RateLimitInfo: r.limiter.Info(),
	}
}

func (r *Relay) publish() {
	// Construction order: the breaker and limiter fire callbacks only on
	// traffic, but guard anyway until the queue exists.
	if r.queue == nil {
		return
	}
	r.publishWithState(r.breaker.State())
}

func (r *Relay) publishWithState(cs breaker.State) {
	if r.queue == nil {
		return
	}
	st := QueueStatus{
		CircuitState:  cs,
		QueueLength:   r.queue.Len(),
		IsProcessing:  r.queue.IsProcessing(),
		RateLimitInfo: r.limiter.Info(),
	}
	r.publisher.Publish(st)

	if r.metrics != nil {
		r.metrics.SetQueueDepth(st.QueueLength)
		r.metrics.SetInFlight(st.IsProcessing)
		r.metrics.SetCircuitState(int(st.CircuitState))
		r.metrics.SetRateLimitActive(st.RateLimitInfo.IsActive)
		r.metrics.CacheEntries.Set(float64(r.cache.Len()))
	}
}
