package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock lets tests move time forward without sleeping.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(limits Limits) (*Limiter, *testClock) {
	clock := &testClock{now: time.Unix(1700000000, 0)}
	l := New(limits)
	l.now = clock.Now
	l.lastRefill = clock.Now()
	return l, clock
}

func TestConcurrencyCeiling(t *testing.T) {
	l, _ := newTestLimiter(Limits{Concurrent: 2})

	require.True(t, l.TryAcquire())
	require.True(t, l.TryAcquire())
	require.False(t, l.TryAcquire(), "third concurrent acquire must be denied")

	l.Release()
	require.True(t, l.TryAcquire(), "permit must be reusable after release")
}

func TestTokenBucketExhaustion(t *testing.T) {
	l, clock := newTestLimiter(Limits{RPS: 3})

	for i := 0; i < 3; i++ {
		require.True(t, l.TryAcquire())
		l.Release()
	}
	require.False(t, l.TryAcquire(), "bucket must be empty after burst")

	clock.Advance(time.Second)
	require.True(t, l.TryAcquire(), "bucket must refill after one second")
}

func TestTokenBucketSaturates(t *testing.T) {
	l, clock := newTestLimiter(Limits{RPS: 2})

	clock.Advance(time.Hour)

	for i := 0; i < 2; i++ {
		require.True(t, l.TryAcquire())
		l.Release()
	}
	require.False(t, l.TryAcquire(), "bucket must not accumulate beyond capacity")
}

func TestWindowCeiling(t *testing.T) {
	l, clock := newTestLimiter(Limits{RPM: 5})

	for i := 0; i < 5; i++ {
		require.True(t, l.TryAcquire())
		l.Release()
	}
	require.False(t, l.TryAcquire(), "sixth request within the window must be denied")

	clock.Advance(30 * time.Second)
	require.False(t, l.TryAcquire(), "window still holds five timestamps")

	clock.Advance(31 * time.Second)
	require.True(t, l.TryAcquire(), "timestamps must be evicted after 60s")
}

func TestDenialRestoresToken(t *testing.T) {
	l, _ := newTestLimiter(Limits{RPS: 2, Concurrent: 1})

	require.True(t, l.TryAcquire())

	// Denied by the concurrency check, after provisionally consuming a token.
	require.False(t, l.TryAcquire())

	l.Release()

	// One token was spent on the grant; the denial must have restored the
	// other one.
	require.True(t, l.TryAcquire())
}

func TestWindowDenialRestoresToken(t *testing.T) {
	l, _ := newTestLimiter(Limits{RPS: 5, RPM: 1})

	require.True(t, l.TryAcquire())
	l.Release()

	require.False(t, l.TryAcquire())
	require.False(t, l.TryAcquire())
	require.False(t, l.TryAcquire())

	l.mu.Lock()
	tokens := l.tokens
	l.mu.Unlock()
	assert.InDelta(t, 4.0, tokens, 0.01, "window denials must not leak tokens")
}

func TestZeroLimitsAlwaysGrant(t *testing.T) {
	l, _ := newTestLimiter(Limits{})

	for i := 0; i < 100; i++ {
		require.True(t, l.TryAcquire())
	}
}

func TestReleaseWithoutAcquireDoesNotUnderflow(t *testing.T) {
	l, _ := newTestLimiter(Limits{Concurrent: 1})

	l.Release()

	require.True(t, l.TryAcquire())
	require.False(t, l.TryAcquire())
}

func TestConcurrentAcquireNeverExceedsCeiling(t *testing.T) {
	l, _ := newTestLimiter(Limits{Concurrent: 5})

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire() {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, granted, "exactly Concurrent goroutines must be admitted")
	assert.Equal(t, 5, l.InFlight())
}

func TestConcurrentChurnHoldsInvariants(t *testing.T) {
	l, _ := newTestLimiter(Limits{Concurrent: 3})

	var group sync.WaitGroup
	for i := 0; i < 20; i++ {
		group.Add(1)
		go func() {
			defer group.Done()
			for j := 0; j < 200; j++ {
				if l.TryAcquire() {
					assert.LessOrEqual(t, l.InFlight(), 3)
					l.Release()
				}
			}
		}()
	}
	group.Wait()

	assert.Equal(t, 0, l.InFlight(), "all permits must be released")
}

func TestTokensNeverNegative(t *testing.T) {
	l, clock := newTestLimiter(Limits{RPS: 1})

	for i := 0; i < 10; i++ {
		l.TryAcquire()
		l.Release()
		clock.Advance(100 * time.Millisecond)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.GreaterOrEqual(t, l.tokens, 0.0)
}
