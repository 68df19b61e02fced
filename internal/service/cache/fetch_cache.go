package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	pkgcache "MarketEngine/pkg/cache"
)

const keyPrefix = "fetch"

// Entry is a cached response body with the time it was fetched.
type Entry struct {
	FetchedAt time.Time `json:"fetched_at"`
	Body      []byte    `json:"body"`
}

// FetchCache maps request fingerprints to response bodies.
type FetchCache struct {
	svc pkgcache.Service
	now func() time.Time
}

// NewFetchCache wraps a cache service.
func NewFetchCache(svc pkgcache.Service) *FetchCache {
	return &FetchCache{svc: svc, now: time.Now}
}

// Fingerprint derives the cache key from the URL and content-affecting headers.
func Fingerprint(url string, headers map[string]string) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(url)
	b.WriteByte('#')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strings.ToLower(k))
		b.WriteByte('=')
		b.WriteString(headers[k])
	}
	return pkgcache.Key(keyPrefix, b.String())
}

// Lookup returns the body stored under fp when it is no older than ttl.
func (c *FetchCache) Lookup(ctx context.Context, fp string, ttl time.Duration) ([]byte, bool, error) {
	var e Entry
	if err := c.svc.Get(ctx, fp, &e); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetch cache get: %w", err)
	}
	if ttl > 0 && c.now().Sub(e.FetchedAt) > ttl {
		return nil, false, nil
	}
	return e.Body, true, nil
}

// Store saves body under fp. Concurrent writers race; the last one wins.
func (c *FetchCache) Store(ctx context.Context, fp string, body []byte, ttl time.Duration) error {
	e := Entry{FetchedAt: c.now().UTC(), Body: body}
	if err := c.svc.Set(ctx, fp, e, ttl); err != nil {
		return fmt.Errorf("fetch cache set: %w", err)
	}
	return nil
}
