package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightdesk/relay/internal/relay/breaker"
	"github.com/freightdesk/relay/internal/relay/cache"
	"github.com/freightdesk/relay/internal/relay/limiter"
)

type fixture struct {
	queue   *Queue
	breaker *breaker.Breaker
	limiter *limiter.Limiter
	cache   *cache.Cache
}

func newFixture(t *testing.T, minInterval time.Duration, backoff BackoffPolicy) *fixture {
	return newFixtureTrip(t, minInterval, backoff, 5)
}

func newFixtureTrip(t *testing.T, minInterval time.Duration, backoff BackoffPolicy, trip uint32) *fixture {
	t.Helper()

	b := breaker.New("test", breaker.Settings{
		Interval: time.Minute,
		Timeout:  time.Minute,
		ReadyToTrip: func(counts breaker.Counts) bool {
			return counts.ConsecutiveFailures >= trip
		},
	})
	l := limiter.New(minInterval)
	c := cache.New(time.Minute)

	q := New(Config{
		Breaker: b,
		Limiter: l,
		Cache:   c,
		Backoff: backoff,
	})
	t.Cleanup(q.Close)

	return &fixture{queue: q, breaker: b, limiter: l, cache: c}
}

func fastBackoff() BackoffPolicy {
	return BackoffPolicy{BaseWait: 10 * time.Millisecond, MaxWait: 50 * time.Millisecond, MaxRetries: 3}
}

func await(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("item never settled")
		return Result{}
	}
}

func TestQueueFIFO(t *testing.T) {
	f := newFixture(t, 0, fastBackoff())

	var mu sync.Mutex
	var order []int
	var chans []<-chan Result

	for i := 0; i < 3; i++ {
		i := i
		chans = append(chans, f.queue.Enqueue(context.Background(), &Item{
			Execute: func(context.Context) (any, error) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return i, nil
			},
		}))
	}

	for i, ch := range chans {
		r := await(t, ch)
		require.NoError(t, r.Err)
		assert.Equal(t, i, r.Value)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestQueueDispatchSpacing(t *testing.T) {
	f := newFixture(t, 60*time.Millisecond, fastBackoff())

	var mu sync.Mutex
	var starts []time.Time
	var chans []<-chan Result

	for i := 0; i < 3; i++ {
		chans = append(chans, f.queue.Enqueue(context.Background(), &Item{
			Execute: func(context.Context) (any, error) {
				mu.Lock()
				starts = append(starts, time.Now())
				mu.Unlock()
				return nil, nil
			},
		}))
	}
	for _, ch := range chans {
		require.NoError(t, await(t, ch).Err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 3)
	for i := 1; i < 3; i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), 55*time.Millisecond)
	}
	// First to third dispatch start spans at least two full intervals.
	assert.GreaterOrEqual(t, starts[2].Sub(starts[0]), 110*time.Millisecond)
}

func TestQueuePriorityOvertake(t *testing.T) {
	f := newFixture(t, 0, fastBackoff())

	gate := make(chan struct{})
	var mu sync.Mutex
	var order []string

	exec := func(name string) func(context.Context) (any, error) {
		return func(context.Context) (any, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return name, nil
		}
	}

	// Occupy the worker so the next two items are both pending.
	blocked := f.queue.Enqueue(context.Background(), &Item{
		Execute: func(context.Context) (any, error) {
			<-gate
			return "blocked", nil
		},
	})

	low := f.queue.Enqueue(context.Background(), &Item{Execute: exec("low"), Priority: 0})
	high := f.queue.Enqueue(context.Background(), &Item{Execute: exec("high"), Priority: 5})

	close(gate)
	require.NoError(t, await(t, blocked).Err)
	require.NoError(t, await(t, high).Err)
	require.NoError(t, await(t, low).Err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"high", "low"}, order)
}

func TestQueueCacheIdempotence(t *testing.T) {
	f := newFixture(t, 0, fastBackoff())

	var calls atomic.Int32
	item := func() *Item {
		return &Item{
			CacheKey: cache.Key("GET", "/cargo", nil),
			Execute: func(context.Context) (any, error) {
				calls.Add(1)
				return "payload", nil
			},
		}
	}

	r := await(t, f.queue.Enqueue(context.Background(), item()))
	require.NoError(t, r.Err)
	assert.Equal(t, "payload", r.Value)

	// Second enqueue within the TTL window resolves from cache.
	r = await(t, f.queue.Enqueue(context.Background(), item()))
	require.NoError(t, r.Err)
	assert.Equal(t, "payload", r.Value)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, f.queue.Len())
}

func TestQueueSingleFlight(t *testing.T) {
	f := newFixture(t, 0, fastBackoff())

	gate := make(chan struct{})
	var calls atomic.Int32

	first := f.queue.Enqueue(context.Background(), &Item{
		CacheKey: "GET /cargo",
		Execute: func(context.Context) (any, error) {
			calls.Add(1)
			<-gate
			return "payload", nil
		},
	})

	// Same key while the first is in flight: absorbed, not re-executed.
	second := f.queue.Enqueue(context.Background(), &Item{
		CacheKey: "GET /cargo",
		Execute: func(context.Context) (any, error) {
			calls.Add(1)
			return "other", nil
		},
	})

	close(gate)

	r1 := await(t, first)
	r2 := await(t, second)
	require.NoError(t, r1.Err)
	require.NoError(t, r2.Err)
	assert.Equal(t, "payload", r1.Value)
	assert.Equal(t, "payload", r2.Value)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueueCircuitOpenFailsFast(t *testing.T) {
	f := newFixtureTrip(t, 0, fastBackoff(), 2)

	boom := Fatal(errors.New("bad request"))
	for i := 0; i < 2; i++ {
		r := await(t, f.queue.Enqueue(context.Background(), &Item{
			Execute: func(context.Context) (any, error) { return nil, boom },
		}))
		require.Error(t, r.Err)
	}

	require.Equal(t, breaker.StateOpen, f.breaker.State())

	var executed atomic.Bool
	r := await(t, f.queue.Enqueue(context.Background(), &Item{
		Execute: func(context.Context) (any, error) {
			executed.Store(true)
			return nil, nil
		},
	}))

	assert.ErrorIs(t, r.Err, breaker.ErrCircuitOpen)
	assert.False(t, executed.Load(), "no network attempt while open")
}

func TestQueueTransientRetriesThenSucceeds(t *testing.T) {
	f := newFixture(t, 0, fastBackoff())

	var calls atomic.Int32
	r := await(t, f.queue.Enqueue(context.Background(), &Item{
		Execute: func(context.Context) (any, error) {
			if calls.Add(1) < 2 {
				return nil, Transient(errors.New("upstream hiccup"))
			}
			return "ok", nil
		},
	}))

	require.NoError(t, r.Err)
	assert.Equal(t, "ok", r.Value)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, breaker.StateClosed, f.breaker.State())
	assert.Equal(t, uint32(0), f.breaker.Counts().ConsecutiveFailures, "success resets the failure counter")
}

func TestQueueRetriesExhausted(t *testing.T) {
	f := newFixture(t, 0, BackoffPolicy{BaseWait: 5 * time.Millisecond, MaxWait: 10 * time.Millisecond, MaxRetries: 2})

	var calls atomic.Int32
	r := await(t, f.queue.Enqueue(context.Background(), &Item{
		Execute: func(context.Context) (any, error) {
			calls.Add(1)
			return nil, Transient(errors.New("upstream down"))
		},
	}))

	assert.ErrorIs(t, r.Err, ErrRetriesExhausted)
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus two retries")
}

func TestQueueRateLimitHonored(t *testing.T) {
	f := newFixture(t, 0, fastBackoff())

	var calls atomic.Int32
	var second time.Time
	start := time.Now()

	r := await(t, f.queue.Enqueue(context.Background(), &Item{
		Execute: func(context.Context) (any, error) {
			if calls.Add(1) == 1 {
				return nil, RateLimited(errors.New("too many requests"), 80*time.Millisecond)
			}
			second = time.Now()
			return "ok", nil
		},
	}))

	require.NoError(t, r.Err)
	assert.Equal(t, int32(2), calls.Load())
	assert.GreaterOrEqual(t, second.Sub(start), 75*time.Millisecond,
		"no dispatch before the retry-after window elapses")
	assert.False(t, f.limiter.Info().IsActive, "window cleared after success")
	// A 429 is not a breaker failure.
	assert.Equal(t, uint32(0), f.breaker.Counts().TotalFailures)
}

func TestQueueRateLimitInfoActiveDuringWindow(t *testing.T) {
	f := newFixture(t, 0, fastBackoff())

	gate := make(chan struct{})
	done := f.queue.Enqueue(context.Background(), &Item{
		Execute: func(context.Context) (any, error) {
			select {
			case <-gate:
				return "ok", nil
			default:
				close(gate)
				return nil, RateLimited(errors.New("too many requests"), 60*time.Millisecond)
			}
		},
	})

	<-gate
	time.Sleep(10 * time.Millisecond)
	info := f.limiter.Info()
	assert.True(t, info.IsActive)
	assert.Equal(t, "too many requests", info.Message)

	require.NoError(t, await(t, done).Err)
}

func TestQueueResetRejectsPending(t *testing.T) {
	f := newFixture(t, 0, fastBackoff())

	gate := make(chan struct{})
	inflight := f.queue.Enqueue(context.Background(), &Item{
		Execute: func(context.Context) (any, error) {
			<-gate
			return "survived", nil
		},
	})

	var executed atomic.Int32
	pending1 := f.queue.Enqueue(context.Background(), &Item{
		Execute: func(context.Context) (any, error) { executed.Add(1); return nil, nil },
	})
	pending2 := f.queue.Enqueue(context.Background(), &Item{
		Execute: func(context.Context) (any, error) { executed.Add(1); return nil, nil },
	})

	// Wait for the first item to reach execution before resetting.
	assert.Eventually(t, func() bool { return f.queue.IsProcessing() }, time.Second, time.Millisecond)

	f.queue.Reset()

	assert.ErrorIs(t, await(t, pending1).Err, ErrQueueReset)
	assert.ErrorIs(t, await(t, pending2).Err, ErrQueueReset)
	assert.Equal(t, 0, f.queue.Len())

	// The in-flight dispatch is not aborted.
	close(gate)
	r := await(t, inflight)
	require.NoError(t, r.Err)
	assert.Equal(t, "survived", r.Value)
	assert.Equal(t, int32(0), executed.Load())
}

func TestQueueCloseRejectsPending(t *testing.T) {
	f := newFixture(t, 0, fastBackoff())

	gate := make(chan struct{})
	defer close(gate)
	_ = f.queue.Enqueue(context.Background(), &Item{
		Execute: func(ctx context.Context) (any, error) {
			select {
			case <-gate:
			case <-ctx.Done():
			}
			return nil, ctx.Err()
		},
	})
	pending := f.queue.Enqueue(context.Background(), &Item{
		Execute: func(context.Context) (any, error) { return nil, nil },
	})

	assert.Eventually(t, func() bool { return f.queue.IsProcessing() }, time.Second, time.Millisecond)
	f.queue.Close()

	assert.ErrorIs(t, await(t, pending).Err, ErrQueueClosed)
}

func TestQueueOnChangeFires(t *testing.T) {
	var changes atomic.Int32

	b := breaker.New("test", breaker.Settings{Interval: time.Minute, Timeout: time.Minute})
	q := New(Config{
		Breaker:  b,
		Limiter:  limiter.New(0),
		Cache:    cache.New(time.Minute),
		Backoff:  fastBackoff(),
		OnChange: func() { changes.Add(1) },
	})
	defer q.Close()

	r := await(t, q.Enqueue(context.Background(), &Item{
		Execute: func(context.Context) (any, error) { return nil, nil },
	}))
	require.NoError(t, r.Err)

	assert.GreaterOrEqual(t, changes.Load(), int32(3), "enqueue, dispatch, and settle all publish")
}
