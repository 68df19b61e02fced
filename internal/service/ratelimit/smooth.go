package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Smooth spreads capacity evenly over period instead of allowing bursts.
type Smooth struct {
	rl *rate.Limiter
}

// NewSmooth creates a limiter emitting one token every period/capacity.
func NewSmooth(capacity int, period time.Duration) *Smooth {
	if capacity <= 0 {
		capacity = 1
	}
	if period <= 0 {
		period = time.Second
	}
	return &Smooth{rl: rate.NewLimiter(rate.Every(period/time.Duration(capacity)), 1)}
}

// Acquire blocks until a token is available or ctx is done.
func (s *Smooth) Acquire(ctx context.Context) error {
	return s.rl.Wait(ctx)
}
