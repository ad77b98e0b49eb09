package cache

import (
	"context"
	"errors"
	"time"

	"github.com/coocood/freecache"
)

// Cache stores encoded weather payloads with a TTL.
// Get returns (value, true, nil) on hit and (nil, false, nil) on miss or expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// minInMemorySize is the smallest arena freecache accepts (512KB).
const minInMemorySize = 512 * 1024

// InMemoryCache implements Cache on a fixed-size freecache arena. Safe for concurrent use;
// the oldest entries are evicted when the arena is full.
type InMemoryCache struct {
	cache *freecache.Cache
}

// NewInMemoryCache creates an in-memory cache of sizeBytes. Sizes below 512KB are raised.
func NewInMemoryCache(sizeBytes int) *InMemoryCache {
	if sizeBytes < minInMemorySize {
		sizeBytes = minInMemorySize
	}
	return &InMemoryCache{cache: freecache.NewCache(sizeBytes)}
}

// Get retrieves the value for key if present and not expired.
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	val, err := c.cache.Get([]byte(key))
	if err != nil {
		if errors.Is(err, freecache.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return val, true, nil
}

// Set stores value under key. freecache expires on whole seconds, so ttl is rounded up
// to at least one second.
func (c *InMemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.cache.Set([]byte(key), value, expireSeconds(ttl))
}

// EntryCount returns the number of live entries.
func (c *InMemoryCache) EntryCount() int64 {
	return c.cache.EntryCount()
}

func expireSeconds(ttl time.Duration) int {
	sec := int((ttl + time.Second - 1) / time.Second)
	if sec < 1 {
		sec = 1
	}
	return sec
}

// NoopCache is used when caching is disabled. Every Get misses.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]byte, bool, error)            { return nil, false, nil }
func (NoopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
