package cachemanager

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/nametags/internal/log"
)

const (
	// NoExpiration keeps an entry until it is deleted explicitly.
	NoExpiration = gocache.NoExpiration

	// UseDefaultTTL applies the cache's default expiration to an entry.
	UseDefaultTTL = gocache.DefaultExpiration

	// DefaultCleanupInterval is how often the janitor sweeps expired entries.
	DefaultCleanupInterval = 30 * time.Second
)

// NewInMemoryCacheManager initializes a go-cache backed manager. A
// defaultExpiration of NoExpiration disables expiry entirely.
func NewInMemoryCacheManager[K ~string, V any](useCase string, defaultExpiration, cleanupInterval time.Duration) *InMemoryCacheManager[K, V] {
	m := &InMemoryCacheManager[K, V]{
		useCase: useCase,
		cache:   gocache.New(defaultExpiration, cleanupInterval),
	}
	m.cache.OnEvicted(m.evicted)
	return m
}

// InMemoryCacheManager is the concrete implementation of the CacheManager interface.
type InMemoryCacheManager[K ~string, V any] struct {
	useCase string
	cache   *gocache.Cache

	// go-cache reports explicit deletes and expiry through the same
	// callback; keys being deleted explicitly are parked here so the
	// expiry hook can ignore them.
	deleting sync.Map
	// writeMu serializes every mutation so a read-modify-write such as
	// GetWithRefresh or Take sees no interleaved Set or Delete.
	writeMu sync.Mutex

	hookMu   sync.RWMutex
	onExpire func(key K, value V)
}

var _ CacheManager[string, int] = (*InMemoryCacheManager[string, int])(nil)

// OnExpire registers fn to run when an entry expires. It is not called for
// Delete, Take or Flush. fn runs on the janitor goroutine.
func (c *InMemoryCacheManager[K, V]) OnExpire(fn func(key K, value V)) {
	c.hookMu.Lock()
	c.onExpire = fn
	c.hookMu.Unlock()
}

func (c *InMemoryCacheManager[K, V]) evicted(key string, value any) {
	if _, explicit := c.deleting.Load(key); explicit {
		return
	}

	v, ok := value.(V)
	if !ok {
		log.Error(log.CatCache, "wrong type assertion on expiry", "cache", c.useCase, "key", key)
		return
	}

	c.hookMu.RLock()
	fn := c.onExpire
	c.hookMu.RUnlock()

	log.Debug(log.CatCache, "cache entry expired", "cache", c.useCase, "key", key)
	if fn != nil {
		fn(K(key), v)
	}
}

// Get retrieves an item from the cache by its key.
func (c *InMemoryCacheManager[K, V]) Get(ctx context.Context, key K) (V, bool) {
	var zeroValue V

	value, found := c.cache.Get(string(key))
	if !found {
		return zeroValue, false
	}

	v, ok := value.(V)
	if !ok {
		log.Error(log.CatCache, "wrong type assertion when getting value", "cache", c.useCase, "key", key)

		return zeroValue, false
	}

	log.Debug(log.CatCache, "cache hit", "cache", c.useCase, "key", key)

	return v, true
}

// GetWithRefresh retrieves an item and, when found, puts it back with a
// fresh ttl so that reads keep the entry alive. An entry removed or expired
// meanwhile is reported as a miss and never restored.
func (c *InMemoryCacheManager[K, V]) GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	value, found := c.Get(ctx, key)
	if !found {
		return value, found
	}

	if err := c.cache.Replace(string(key), value, ttl); err != nil {
		var zeroValue V
		return zeroValue, false
	}

	return value, found
}

// Set stores a value under key with the given ttl.
func (c *InMemoryCacheManager[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.cache.Set(string(key), value, ttl)
}

// Add stores value only if key is absent or expired. It reports whether the
// value was stored.
func (c *InMemoryCacheManager[K, V]) Add(ctx context.Context, key K, value V, ttl time.Duration) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.cache.Add(string(key), value, ttl) == nil
}

// Replace stores value only if key is present. It reports whether the value
// was stored.
func (c *InMemoryCacheManager[K, V]) Replace(ctx context.Context, key K, value V, ttl time.Duration) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.cache.Replace(string(key), value, ttl) == nil
}

// Delete removes values without firing the expiry hook.
func (c *InMemoryCacheManager[K, V]) Delete(ctx context.Context, keys ...K) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for _, key := range keys {
		c.deleteQuietly(string(key))
	}
	return nil
}

func (c *InMemoryCacheManager[K, V]) deleteQuietly(key string) {
	c.deleting.Store(key, struct{}{})
	c.cache.Delete(key)
	c.deleting.Delete(key)
}

// Take removes and returns the value stored under key.
func (c *InMemoryCacheManager[K, V]) Take(ctx context.Context, key K) (V, bool) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	v, ok := c.Get(ctx, key)
	if !ok {
		return v, false
	}
	c.deleteQuietly(string(key))
	return v, true
}

// Items returns a snapshot of every unexpired entry.
func (c *InMemoryCacheManager[K, V]) Items(ctx context.Context) map[K]V {
	items := c.cache.Items()
	out := make(map[K]V, len(items))
	for key, item := range items {
		if v, ok := item.Object.(V); ok {
			out[K(key)] = v
		}
	}
	return out
}

// Count returns the number of entries, including expired ones not yet swept.
func (c *InMemoryCacheManager[K, V]) Count() int {
	return c.cache.ItemCount()
}

// DeleteExpired sweeps expired entries immediately, firing the expiry hook
// for each of them.
func (c *InMemoryCacheManager[K, V]) DeleteExpired() {
	c.cache.DeleteExpired()
}

// Flush removes every entry without firing the expiry hook.
func (c *InMemoryCacheManager[K, V]) Flush(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.cache.Flush()

	return nil
}
