package cachemanager

import (
	"context"
	"sort"
	"time"

	"github.com/zjrosen/nametags/internal/domain"
)

// Repository is the synchronous in-memory store of live aggregates.
// No method performs I/O.
type Repository[P any] interface {
	Find(id string) (*domain.Aggregate[P], bool)
	Exists(id string) bool
	Save(id string, aggregate *domain.Aggregate[P])
	Delete(id string) (*domain.Aggregate[P], bool)
	// FindAll returns a snapshot ordered by id.
	FindAll() []*domain.Aggregate[P]
	Clear()
}

// Eviction describes an aggregate that left the cache because it expired.
type Eviction[P any] struct {
	ID        string
	Aggregate *domain.Aggregate[P]
	At        time.Time
}

// Policy controls entry lifetime in a Repository.
type Policy struct {
	// TTL is the inactivity window; NoExpiration disables expiry.
	TTL time.Duration
	// CleanupInterval is how often expired entries are swept.
	CleanupInterval time.Duration
}

// Unbounded never expires entries.
var Unbounded = Policy{TTL: NoExpiration}

type cacheRepository[P any] struct {
	cache  *InMemoryCacheManager[string, *domain.Aggregate[P]]
	policy Policy
}

// NewUnbounded creates a repository whose entries live until removed.
func NewUnbounded[P any](useCase string) Repository[P] {
	return &cacheRepository[P]{
		cache:  NewInMemoryCacheManager[string, *domain.Aggregate[P]](useCase, NoExpiration, 0),
		policy: Unbounded,
	}
}

// NewExpiring creates a repository with a sliding TTL: every Find and Save
// restarts the entry's window. onExpire runs once per expired entry and
// never for Delete or Clear. A Find or Exists miss sweeps expired entries
// first, so onExpire has run before the caller can refill the id.
func NewExpiring[P any](useCase string, policy Policy, onExpire func(Eviction[P])) Repository[P] {
	if policy.CleanupInterval <= 0 {
		policy.CleanupInterval = DefaultCleanupInterval
	}
	r := &cacheRepository[P]{
		cache:  NewInMemoryCacheManager[string, *domain.Aggregate[P]](useCase, policy.TTL, policy.CleanupInterval),
		policy: policy,
	}
	if onExpire != nil {
		r.cache.OnExpire(func(id string, agg *domain.Aggregate[P]) {
			onExpire(Eviction[P]{ID: id, Aggregate: agg, At: time.Now()})
		})
	}
	return r
}

func (r *cacheRepository[P]) expiring() bool {
	return r.policy.TTL != NoExpiration
}

func (r *cacheRepository[P]) Find(id string) (*domain.Aggregate[P], bool) {
	ctx := context.Background()
	if !r.expiring() {
		return r.cache.Get(ctx, id)
	}
	agg, ok := r.cache.GetWithRefresh(ctx, id, r.policy.TTL)
	if !ok {
		r.sweep()
	}
	return agg, ok
}

func (r *cacheRepository[P]) Exists(id string) bool {
	_, ok := r.cache.Get(context.Background(), id)
	if !ok && r.expiring() {
		r.sweep()
	}
	return ok
}

// sweep fires the expiry callback for entries that expired since the last
// cleanup. A miss can be an expired entry still waiting for the janitor;
// anything that fills the slot afterwards must not overwrite it unnoticed.
func (r *cacheRepository[P]) sweep() {
	r.cache.DeleteExpired()
}

func (r *cacheRepository[P]) Save(id string, aggregate *domain.Aggregate[P]) {
	r.cache.Set(context.Background(), id, aggregate, UseDefaultTTL)
}

func (r *cacheRepository[P]) Delete(id string) (*domain.Aggregate[P], bool) {
	return r.cache.Take(context.Background(), id)
}

func (r *cacheRepository[P]) FindAll() []*domain.Aggregate[P] {
	items := r.cache.Items(context.Background())
	out := make([]*domain.Aggregate[P], 0, len(items))
	for _, agg := range items {
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *cacheRepository[P]) Clear() {
	_ = r.cache.Flush(context.Background())
}
