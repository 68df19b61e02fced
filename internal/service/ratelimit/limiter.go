package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter grants at most capacity acquisitions within any window of length
// period. Waiting callers are suspended, never rejected.
type Limiter struct {
	mu       sync.Mutex
	capacity int
	period   time.Duration
	grants   []time.Time // ring of the last capacity grant times
	next     int
	now      func() time.Time
}

// Option configures Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a sliding-window limiter.
func New(capacity int, period time.Duration, opts ...Option) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	if period <= 0 {
		period = time.Second
	}
	l := &Limiter{
		capacity: capacity,
		period:   period,
		grants:   make([]time.Time, 0, capacity),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		wait := l.reserve()
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAcquire takes a slot if one is free right now.
func (l *Limiter) TryAcquire() bool {
	return l.reserve() <= 0
}

// reserve records a grant and returns 0, or returns how long until the
// oldest grant leaves the window.
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.grants) < l.capacity {
		l.grants = append(l.grants, now)
		return 0
	}
	oldest := l.grants[l.next]
	if elapsed := now.Sub(oldest); elapsed < l.period {
		return l.period - elapsed
	}
	l.grants[l.next] = now
	l.next = (l.next + 1) % l.capacity
	return 0
}
