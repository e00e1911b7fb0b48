// Package cachemanager provides the in-memory caches that hold the
// authoritative live copy of every aggregate.
//
// InMemoryCacheManager wraps go-cache with typed access and an expiry-only
// hook. Repository builds the two cache policies on top of it: unbounded
// (players, evicted only explicitly) and expiring with a sliding TTL (tags,
// written back to the store when they expire).
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is a typed key/value cache with per-entry TTLs.
type CacheManager[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Take(ctx context.Context, key K) (V, bool)
	Items(ctx context.Context) map[K]V
	Flush(ctx context.Context) error
}
