package cache

import (
	"context"
	"encoding/json"
	"path"
	"sort"
	"sync"
	"time"

	"comparoo/internal/domain/comparison"
	"comparoo/pkg/errors"
)

// cacheItem represents a single item in the cache with expiration
type cacheItem struct {
	data       []byte
	expiration time.Time
}

// MemoryCache is a thread-safe in-memory cache with TTL support.
// Values are stored as JSON so reads behave like the Redis backend.
type MemoryCache struct {
	data  map[string]cacheItem
	mutex sync.RWMutex
	now   func() time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		data: make(map[string]cacheItem),
		now:  time.Now,
	}
}

// StartJanitor removes expired entries every interval until ctx is done
func (c *MemoryCache) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.purgeExpired()
			}
		}
	}()
}

// GetJSON decodes the value stored at key into dest
func (c *MemoryCache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mutex.RLock()
	item, exists := c.data[key]
	c.mutex.RUnlock()

	if !exists || c.expired(item) {
		return false, nil
	}
	if err := json.Unmarshal(item.data, dest); err != nil {
		return false, nil
	}
	return true, nil
}

// SetJSON stores a value in the cache with TTL; ttl <= 0 never expires
func (c *MemoryCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode cache value %s", key)
	}

	item := cacheItem{data: data}
	if ttl > 0 {
		item.expiration = c.now().Add(ttl)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.data[key] = item
	return nil
}

// Keys returns live keys matching a glob pattern, sorted
func (c *MemoryCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	keys := make([]string, 0)
	for key, item := range c.data {
		if c.expired(item) {
			continue
		}
		ok, err := path.Match(pattern, key)
		if err != nil {
			return nil, errors.Wrapf(err, "bad pattern %q", pattern)
		}
		if ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes keys and returns how many were live
func (c *MemoryCache) Delete(ctx context.Context, keys ...string) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	deleted := 0
	for _, key := range keys {
		if item, ok := c.data[key]; ok {
			if !c.expired(item) {
				deleted++
			}
			delete(c.data, key)
		}
	}
	return deleted, nil
}

// Size returns the current number of items in the cache
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

func (c *MemoryCache) expired(item cacheItem) bool {
	return !item.expiration.IsZero() && c.now().After(item.expiration)
}

func (c *MemoryCache) purgeExpired() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for key, item := range c.data {
		if c.expired(item) {
			delete(c.data, key)
		}
	}
}

var _ comparison.AdminCache = (*MemoryCache)(nil)
