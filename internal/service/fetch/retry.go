package fetch

import (
	"context"
	"errors"
	"net/http"
	"time"

	xhttp "MarketEngine/pkg/http"
)

// RetryPolicy is the single retry strategy used by every fetch.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Retryable   func(err error) bool
}

// DefaultRetryPolicy makes 5 attempts one second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Backoff:     FixedBackoff(time.Second),
		Retryable:   IsRetryable,
	}
}

// FixedBackoff waits d between every attempt.
func FixedBackoff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// LinearBackoff waits base, 2*base, 3*base ...
func LinearBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration { return time.Duration(attempt) * base }
}

// IsRetryable treats transport failures, throttling and server errors as
// transient. Other HTTP statuses will not change on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusRequestTimeout,
			se.Code == http.StatusTooEarly,
			se.Code == http.StatusTooManyRequests:
			return true
		case se.Code >= 500:
			return true
		default:
			return false
		}
	}
	return true
}

// maxRetryAfter caps how long a server may ask us to wait.
const maxRetryAfter = time.Minute

func retryAfter(err error) time.Duration {
	var se *xhttp.StatusError
	if !errors.As(err, &se) {
		return 0
	}
	return min(se.RetryAfter, maxRetryAfter)
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts the
// attempts or ctx ends. It reports how many attempts ran. A Retry-After from
// the server stretches the wait beyond the backoff.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	var err error
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		if err = fn(attempt); err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil || !retryable(err) || attempt == maxAttempts {
			break
		}
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if ra := retryAfter(err); ra > wait {
			wait = ra
		}
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, err
		case <-timer.C:
		}
	}
	return attempt, err
}
