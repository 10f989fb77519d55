// Package ratelimit implements the per-target admission gate: a token bucket
// for requests-per-second, a trailing 60s window for requests-per-minute, and
// a bounded concurrency permit pool, evaluated as one atomic decision.
package ratelimit

import (
	"sync"
	"time"
)

const windowDuration = time.Minute

// Limits are the admission ceilings for one target. A value <= 0 disables
// that sub-limit.
type Limits struct {
	RPS        int
	RPM        int
	Concurrent int
}

// Limiter guards one target. All three sub-limits are checked under a single
// mutex so two callers can never pass individual checks whose combination
// violates a ceiling.
type Limiter struct {
	mu     sync.Mutex
	limits Limits

	tokens     float64
	lastRefill time.Time

	window []time.Time

	inFlight int

	now func() time.Time
}

// New creates a limiter with a full token bucket.
func New(limits Limits) *Limiter {
	l := &Limiter{
		limits: limits,
		tokens: float64(limits.RPS),
		now:    time.Now,
	}
	l.lastRefill = l.now()
	return l
}

// TryAcquire makes one admission decision. It never blocks: the caller gets
// an immediate grant or an immediate denial. Every grant must be paired with
// exactly one Release.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	consumedToken := false
	if l.limits.RPS > 0 {
		elapsed := now.Sub(l.lastRefill).Seconds()
		l.tokens = min(float64(l.limits.RPS), l.tokens+elapsed*float64(l.limits.RPS))
		l.lastRefill = now

		if l.tokens < 1 {
			return false
		}
		l.tokens--
		consumedToken = true
	}

	if l.limits.RPM > 0 {
		l.evictWindow(now)
		if len(l.window) >= l.limits.RPM {
			if consumedToken {
				l.tokens++
			}
			return false
		}
	}

	if l.limits.Concurrent > 0 && l.inFlight >= l.limits.Concurrent {
		if consumedToken {
			l.tokens++
		}
		return false
	}

	if l.limits.RPM > 0 {
		l.window = append(l.window, now)
	}
	l.inFlight++

	return true
}

// Release returns one concurrency permit. It must be called exactly once per
// granted TryAcquire, on every exit path.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inFlight > 0 {
		l.inFlight--
	}
}

// InFlight reports the number of permits currently held.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.inFlight
}

// evictWindow drops acquisition timestamps older than the trailing window.
// Caller holds l.mu.
func (l *Limiter) evictWindow(now time.Time) {
	cutoff := now.Add(-windowDuration)

	i := 0
	for i < len(l.window) && l.window[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		l.window = append(l.window[:0], l.window[i:]...)
	}
}
