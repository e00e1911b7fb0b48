package cachemanager

import (
	"context"

	"github.com/zjrosen/nametags/internal/domain"
)

// Loader fetches an aggregate from outside the cache. It returns an error
// for absence as well as failure so that nothing is cached on a miss.
type Loader[P any] func(ctx context.Context, id string) (*domain.Aggregate[P], error)

// ReadThroughCache serves reads from a Repository and, on a miss, loads the
// aggregate and stores it before returning.
type ReadThroughCache[P any] struct {
	repo            Repository[P]
	load            Loader[P]
	shouldSkipCache bool
}

func NewReadThroughCache[P any](repo Repository[P], load Loader[P], shouldSkipCache bool) *ReadThroughCache[P] {
	return &ReadThroughCache[P]{
		repo:            repo,
		load:            load,
		shouldSkipCache: shouldSkipCache,
	}
}

// Get returns the cached aggregate or loads and caches it.
func (r *ReadThroughCache[P]) Get(ctx context.Context, id string) (*domain.Aggregate[P], error) {
	if r.shouldSkipCache {
		return r.load(ctx, id)
	}

	if agg, ok := r.repo.Find(id); ok {
		return agg, nil
	}

	agg, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}

	// Another caller may have registered the id while we were loading;
	// the cached copy wins.
	if cached, ok := r.repo.Find(id); ok {
		return cached, nil
	}
	r.repo.Save(id, agg)

	return agg, nil
}
