package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// maxMemoryTTL applies when Set is called without an expiration.
const maxMemoryTTL = 7 * 24 * time.Hour

type memoryEntry struct {
	value    []byte
	expireAt time.Time
}

// MemoryCache implements Service on a size-bounded LRU. Expired entries are
// dropped when read; capacity pressure evicts the least recently used.
type MemoryCache struct {
	lru *lru.Cache[string, memoryEntry]
	now func() time.Time
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{MaxSize: 1000}
	for _, opt := range opts {
		opt(cfg)
	}
	// only fails for a non-positive size, which the option guards against
	l, _ := lru.New[string, memoryEntry](cfg.MaxSize)
	return &MemoryCache{lru: l, now: time.Now}
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = maxMemoryTTL
	}
	mc.lru.Add(key, memoryEntry{value: data, expireAt: mc.now().Add(expiration)})
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	e, ok := mc.live(key)
	if !ok {
		return ErrCacheMiss
	}
	return decodeValue(e.value, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		mc.lru.Remove(k)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	for _, k := range keys {
		if _, ok := mc.live(k); ok {
			return true, nil
		}
	}
	return false, nil
}

// Len returns the number of stored entries, expired or not.
func (mc *MemoryCache) Len() int { return mc.lru.Len() }

func (mc *MemoryCache) Close() error {
	mc.lru.Purge()
	return nil
}

func (mc *MemoryCache) live(key string) (memoryEntry, bool) {
	e, ok := mc.lru.Get(key)
	if !ok {
		return memoryEntry{}, false
	}
	if mc.now().After(e.expireAt) {
		mc.lru.Remove(key)
		return memoryEntry{}, false
	}
	return e, true
}
