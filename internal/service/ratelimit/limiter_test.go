package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestLimiterWindow(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(3, time.Second, WithClock(clk.Now))

	// grants at +0ms, +100ms and +200ms
	for i := 0; i < 3; i++ {
		if i > 0 {
			clk.Advance(100 * time.Millisecond)
		}
		if !l.TryAcquire() {
			t.Fatalf("acquire %d rejected", i)
		}
	}
	if l.TryAcquire() {
		t.Fatalf("fourth acquire inside the window must wait")
	}

	clk.Advance(799 * time.Millisecond)
	if l.TryAcquire() {
		t.Fatalf("acquire before the window slides must wait")
	}

	clk.Advance(time.Millisecond)
	if !l.TryAcquire() {
		t.Fatalf("acquire after the window slides rejected")
	}
	if l.TryAcquire() {
		t.Fatalf("only one slot should have freed")
	}

	clk.Advance(100 * time.Millisecond)
	if !l.TryAcquire() {
		t.Fatalf("second grant did not leave the window")
	}
}

func TestLimiterSimultaneousGrantsFreeTogether(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(3, time.Second, WithClock(clk.Now))

	for i := 0; i < 3; i++ {
		l.TryAcquire()
	}
	clk.Advance(time.Second)
	for i := 0; i < 3; i++ {
		if !l.TryAcquire() {
			t.Fatalf("acquire %d after the window rejected", i)
		}
	}
	if l.TryAcquire() {
		t.Fatalf("window holds more than 3 grants")
	}
}

func TestLimiterConcurrentTryAcquire(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(3, time.Second, WithClock(clk.Now))

	var granted int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire() {
				atomic.AddInt32(&granted, 1)
			}
		}()
	}
	wg.Wait()

	if granted != 3 {
		t.Fatalf("granted = %d, want 3", granted)
	}
}

func TestLimiterAcquireBlocks(t *testing.T) {
	l := New(3, 50*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 7; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(ctx); err != nil {
				t.Errorf("acquire: %v", err)
			}
		}()
	}
	wg.Wait()

	// 7 grants at 3 per 50ms need at least two full windows.
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("7 acquisitions finished in %v, want >= 100ms", elapsed)
	}
}

func TestLimiterAcquireCancelled(t *testing.T) {
	l := New(1, time.Hour)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx); err == nil {
		t.Fatalf("expected context error while waiting")
	}
}

func TestSmoothAcquire(t *testing.T) {
	s := NewSmooth(3, 60*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := s.Acquire(ctx); err != nil {
			t.Fatalf("acquire: %v", err)
		}
	}
	// burst 1, one token every 20ms: the third waits for two intervals.
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Fatalf("smooth limiter released 3 tokens in %v", elapsed)
	}
}
