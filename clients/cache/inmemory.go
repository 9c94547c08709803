package cache

import (
	"context"
	"sync"
	"time"
)

// InMemoryCache is a process local Cache, used when caching is enabled
// without a redis endpoint and in tests. Expired values stay in memory
// until Prune runs, see RunPruning.
type InMemoryCache struct {
	data  map[string]cacheItem
	mutex sync.RWMutex
	now   func() time.Time
}

var _ Cache = (*InMemoryCache)(nil)

type cacheItem struct {
	data []byte
	// zero for values that never expire
	expiration time.Time
}

func (i cacheItem) expired(now time.Time) bool {
	return !i.expiration.IsZero() && now.After(i.expiration)
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheItem),
		now:  time.Now,
	}
}

func (c *InMemoryCache) Set(ctx context.Context, key string, data []byte, expiration time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	item := cacheItem{data: append([]byte(nil), data...)}
	if expiration > 0 {
		item.expiration = c.now().Add(expiration)
	}
	c.data[key] = item

	return nil
}

func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, ok := c.data[key]
	if !ok || item.expired(c.now()) {
		return nil, ErrNotFound
	}

	return append([]byte(nil), item.data...), nil
}

func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, key)
	return nil
}

// Healthcheck always succeeds
func (c *InMemoryCache) Healthcheck(ctx context.Context) error {
	return nil
}

// Prune drops expired values and returns how many were removed
func (c *InMemoryCache) Prune() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	var removed int
	for key, item := range c.data {
		if item.expired(now) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

// RunPruning calls Prune every interval until ctx is done. A non positive
// interval disables pruning.
func (c *InMemoryCache) RunPruning(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Prune()
			}
		}
	}()
}

// Len returns the number of stored values, expired ones included
func (c *InMemoryCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.data)
}
