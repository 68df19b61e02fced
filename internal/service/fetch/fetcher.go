package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domrepo "MarketEngine/internal/domain/repository"
	icache "MarketEngine/internal/service/cache"
	xhttp "MarketEngine/pkg/http"
	xlogger "MarketEngine/pkg/logger"
	"MarketEngine/pkg/metrics"
)

var errInvalidJSON = errors.New("response is not valid json")

// Option configures Fetcher.
type Option func(*Fetcher)

// Fetcher composes the fetch cache, the shared limiter and the retry policy.
type Fetcher struct {
	client  *xhttp.Client
	cache   *icache.FetchCache
	limiter domrepo.Limiter
	retry   RetryPolicy
	ttl     time.Duration
	logger  *xlogger.Logger
	metrics domrepo.Metrics
}

// New creates a Fetcher. Without WithCache every call goes to the network.
func New(client *xhttp.Client, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:  client,
		retry:   DefaultRetryPolicy(),
		ttl:     24 * time.Hour,
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = xhttp.NewClient()
	}
	return f
}

// WithCache enables response caching.
func WithCache(c *icache.FetchCache) Option {
	return func(f *Fetcher) { f.cache = c }
}

// WithLimiter sets the limiter every network attempt must pass.
func WithLimiter(l domrepo.Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithRetryPolicy replaces the default 5 x 1s policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(f *Fetcher) { f.retry = p }
}

// WithTTL sets how long cached responses stay valid.
func WithTTL(ttl time.Duration) Option {
	return func(f *Fetcher) {
		if ttl > 0 {
			f.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *xlogger.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m domrepo.Metrics) Option {
	return func(f *Fetcher) {
		if m != nil {
			f.metrics = m
		}
	}
}

// Get returns the response body for url.
func (f *Fetcher) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return f.get(ctx, url, headers, nil)
}

// GetJSON fetches url and decodes the body into dest. Bodies that are not
// valid JSON are retried and never cached.
func (f *Fetcher) GetJSON(ctx context.Context, url string, headers map[string]string, dest interface{}) error {
	body, err := f.get(ctx, url, headers, func(b []byte) error {
		if !json.Valid(b) {
			return errInvalidJSON
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func (f *Fetcher) get(ctx context.Context, url string, headers map[string]string, check func([]byte) error) ([]byte, error) {
	fp := icache.Fingerprint(url, headers)
	if f.cache != nil {
		body, ok, err := f.cache.Lookup(ctx, fp, f.ttl)
		switch {
		case err != nil:
			f.warn("fetch cache lookup failed", url, err)
		case ok:
			f.metrics.RecordFetch("hit")
			return body, nil
		}
	}
	f.metrics.RecordFetch("miss")

	start := time.Now()
	var body []byte
	attempts, err := f.retry.Do(ctx, func(attempt int) error {
		if f.limiter != nil {
			if err := f.limiter.Acquire(ctx); err != nil {
				return err
			}
		}
		if attempt > 1 {
			f.metrics.RecordFetch("retry")
		}

		b, err := f.client.Get(ctx, url, headers, nil)
		if err != nil {
			f.debug("fetch attempt failed", url, attempt, err)
			return err
		}
		if check != nil {
			if err := check(b); err != nil {
				return err
			}
		}
		body = b
		return nil
	})
	f.metrics.RecordLatency("fetch", time.Since(start).Seconds())
	if err != nil {
		f.metrics.RecordFetch("error")
		return nil, &FetchError{URL: url, Status: statusOf(err), Attempts: attempts, Err: err}
	}

	if f.cache != nil {
		if err := f.cache.Store(ctx, fp, body, f.ttl); err != nil {
			f.warn("fetch cache store failed", url, err)
		}
	}
	return body, nil
}

func (f *Fetcher) warn(msg, url string, err error) {
	if f.logger != nil {
		f.logger.Warn(msg, xlogger.String("url", url), xlogger.Error(err))
	}
}

func (f *Fetcher) debug(msg, url string, attempt int, err error) {
	if f.logger != nil {
		f.logger.Debug(msg, xlogger.String("url", url), xlogger.Int("attempt", attempt), xlogger.Error(err))
	}
}

var _ domrepo.Fetcher = (*Fetcher)(nil)
