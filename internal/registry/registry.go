// Package registry mediates between the in-memory cache and the durable
// store for one aggregate subtype. It is the only component callers use to
// load, register, persist and drop aggregates.
//
// Cache and store writes are separate calls: Register only touches the
// cache and Save only touches the store, so callers pick the write pattern.
// When the registry is built with an expiry policy, entries that expire are
// written back to the store by a dedicated goroutine.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zjrosen/nametags/internal/cachemanager"
	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/log"
	"github.com/zjrosen/nametags/internal/pool"
	"github.com/zjrosen/nametags/internal/pubsub"
	"github.com/zjrosen/nametags/internal/store"
)

// ErrStartFailed is returned by Start when the store could not be
// initialized.
var ErrStartFailed = errors.New("store failed to start")

// defaultEvictionBuffer is how many expired entries may queue for write-back
// before the cache janitor blocks.
const defaultEvictionBuffer = 64

// ErrorHandler receives store failures that a lookup turned into "absent".
// Not-found is never reported.
type ErrorHandler func(op, id string, err error)

// WriteBack describes the outcome of persisting an expired entry. The store
// logs the cause of a failed save.
type WriteBack struct {
	ID    string
	Saved bool
}

// flight counts the write-backs queued or running for one id.
type flight struct {
	n    int
	done chan struct{}
}

// Registry is the cache-first facade over one aggregate subtype.
type Registry[P any] struct {
	name    string
	cache   cachemanager.Repository[P]
	store   *store.Async[P]
	reader  *cachemanager.ReadThroughCache[P]
	onError ErrorHandler

	expiring  bool
	evictions chan cachemanager.Eviction[P]
	// mu guards closed against eviction sends racing Close.
	mu      sync.RWMutex
	closed  bool
	loopWG  sync.WaitGroup
	pending sync.WaitGroup

	flightMu sync.Mutex
	inFlight map[string]*flight

	writeBacks *pubsub.Broker[WriteBack]
	written    atomic.Int64
	started    atomic.Bool
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	policy         *cachemanager.Policy
	onError        ErrorHandler
	evictionBuffer int
}

// WithExpiry gives cached entries a sliding TTL with write-back on expiry.
// Without it entries stay cached until Unregister.
func WithExpiry(policy cachemanager.Policy) Option {
	return func(o *options) { o.policy = &policy }
}

// WithErrorHandler replaces the default handler, which logs.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) { o.onError = h }
}

// WithEvictionBuffer sets the write-back queue length.
func WithEvictionBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.evictionBuffer = n
		}
	}
}

// New creates a registry over s. Call Start before use and Close on
// shutdown.
func New[P any](name string, s *store.Async[P], opts ...Option) *Registry[P] {
	o := options{evictionBuffer: defaultEvictionBuffer}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Registry[P]{
		name:       name,
		store:      s,
		onError:    o.onError,
		writeBacks: pubsub.NewBroker[WriteBack](),
		inFlight:   make(map[string]*flight),
	}
	if r.onError == nil {
		r.onError = func(op, id string, err error) {
			log.ErrorErr(log.CatRegistry, "Store lookup failed, treating as absent", err,
				"registry", name, "op", op, "id", id)
		}
	}

	if o.policy != nil && o.policy.TTL != cachemanager.NoExpiration {
		r.expiring = true
		r.evictions = make(chan cachemanager.Eviction[P], o.evictionBuffer)
		r.cache = cachemanager.NewExpiring[P](name, *o.policy, r.enqueue)
		r.loopWG.Add(1)
		go r.writeBackLoop()
	} else {
		r.cache = cachemanager.NewUnbounded[P](name)
	}

	r.reader = cachemanager.NewReadThroughCache[P](r.cache, r.load, false)
	return r
}

// Name returns the subtype name the registry was created with.
func (r *Registry[P]) Name() string {
	return r.name
}

// Start initializes the store. It is safe to call more than once.
func (r *Registry[P]) Start(ctx context.Context) error {
	if r.started.Load() {
		return nil
	}
	if !r.store.Start(ctx) {
		return fmt.Errorf("%s registry: %w", r.name, ErrStartFailed)
	}
	r.started.Store(true)
	log.Info(log.CatRegistry, "Registry started", "registry", r.name, "expiring", r.expiring)
	return nil
}

// load is the read-through loader. Absence is reported as store.ErrNotFound
// so nothing is cached. It runs after a cache miss, which has already queued
// the write-back of an expired copy; the store is read once that has landed.
func (r *Registry[P]) load(ctx context.Context, id string) (*domain.Aggregate[P], error) {
	if err := r.awaitWriteBack(ctx, id); err != nil {
		return nil, err
	}
	agg, err := r.store.FindAsync(ctx, id).Await(ctx)
	if err != nil {
		return nil, err
	}
	if agg == nil {
		return nil, store.ErrNotFound
	}
	return agg, nil
}

// FindInCache returns the cached aggregate or nil. No I/O.
func (r *Registry[P]) FindInCache(id string) *domain.Aggregate[P] {
	agg, _ := r.cache.Find(id)
	return agg
}

// FindInBoth returns the cached aggregate, or loads it from the store and
// caches it. A store failure yields nil and is passed to the ErrorHandler.
// Blocks on store I/O.
func (r *Registry[P]) FindInBoth(ctx context.Context, id string) *domain.Aggregate[P] {
	agg, err := r.reader.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.onError("find", id, err)
		}
		return nil
	}
	return agg
}

// FindInInfrastructure fetches straight from the store without touching the
// cache. Absence resolves to nil.
func (r *Registry[P]) FindInInfrastructure(ctx context.Context, id string) *pool.Future[*domain.Aggregate[P]] {
	return r.store.FindAsync(ctx, id)
}

// ExistsInCache reports whether id is cached.
func (r *Registry[P]) ExistsInCache(id string) bool {
	return r.cache.Exists(id)
}

// ExistsInInfrastructure reports whether the store holds id. Blocks on
// store I/O; a failure reports false.
func (r *Registry[P]) ExistsInInfrastructure(ctx context.Context, id string) bool {
	ok, err := r.store.ExistsAsync(ctx, id).Await(ctx)
	if err != nil {
		r.onError("exists", id, err)
		return false
	}
	return ok
}

// ExistsGlobally reports whether id is cached or stored.
func (r *Registry[P]) ExistsGlobally(ctx context.Context, id string) bool {
	if r.cache.Exists(id) {
		return true
	}
	if err := r.awaitWriteBack(ctx, id); err != nil {
		r.onError("exists", id, err)
		return false
	}
	return r.ExistsInInfrastructure(ctx, id)
}

// ExistsGloballyAsync is the non-blocking form of ExistsGlobally. The cache
// is checked again once the store answers, so a Register made while the
// store was queried still counts.
func (r *Registry[P]) ExistsGloballyAsync(ctx context.Context, id string) *pool.Future[bool] {
	if r.cache.Exists(id) {
		return pool.Resolved(true)
	}
	return pool.Map(r.store.ExistsAsync(ctx, id), func(stored bool) (bool, error) {
		return stored || r.cache.Exists(id), nil
	})
}

// Register upserts the aggregate into the cache. Nothing is persisted.
func (r *Registry[P]) Register(aggregate *domain.Aggregate[P]) {
	r.cache.Save(aggregate.ID(), aggregate)
}

// Unregister removes id from the cache and returns what was removed, or
// nil. Nothing is persisted; the caller decides.
func (r *Registry[P]) Unregister(id string) *domain.Aggregate[P] {
	agg, _ := r.cache.Delete(id)
	return agg
}

// Invalidate drops the cached copy without writing it back, so the next
// FindInBoth reloads it from the store.
func (r *Registry[P]) Invalidate(id string) bool {
	_, ok := r.cache.Delete(id)
	if ok {
		log.Debug(log.CatRegistry, "Cache entry invalidated", "registry", r.name, "id", id)
	}
	return ok
}

// Save upserts the aggregate into the store.
func (r *Registry[P]) Save(ctx context.Context, aggregate *domain.Aggregate[P]) *pool.Future[bool] {
	return r.store.SaveAsync(ctx, aggregate)
}

// Delete removes id from the store. The cache is not touched.
func (r *Registry[P]) Delete(ctx context.Context, id string) *pool.Future[bool] {
	return r.store.DeleteAsync(ctx, id)
}

// FindAllInCache returns the cached aggregates ordered by id.
func (r *Registry[P]) FindAllInCache() []*domain.Aggregate[P] {
	return r.cache.FindAll()
}

// WriteBacks returns a channel of write-back outcomes closed when ctx is
// done.
func (r *Registry[P]) WriteBacks(ctx context.Context) <-chan pubsub.Event[WriteBack] {
	return r.writeBacks.Subscribe(ctx)
}

// WrittenBack returns how many expired entries have been saved.
func (r *Registry[P]) WrittenBack() int64 {
	return r.written.Load()
}

// enqueue runs on the cache janitor. It hands the eviction to the
// write-back loop and never does I/O itself.
func (r *Registry[P]) enqueue(e cachemanager.Eviction[P]) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		log.Warn(log.CatRegistry, "Eviction after close, not written back", "registry", r.name, "id", e.ID)
		return
	}
	r.track(e.ID)
	r.evictions <- e
}

func (r *Registry[P]) track(id string) {
	r.flightMu.Lock()
	defer r.flightMu.Unlock()

	f, ok := r.inFlight[id]
	if !ok {
		f = &flight{done: make(chan struct{})}
		r.inFlight[id] = f
	}
	f.n++
}

func (r *Registry[P]) settle(id string) {
	r.flightMu.Lock()
	defer r.flightMu.Unlock()

	f, ok := r.inFlight[id]
	if !ok {
		return
	}
	f.n--
	if f.n == 0 {
		close(f.done)
		delete(r.inFlight, id)
	}
}

// awaitWriteBack blocks until no write-back of id is queued or running.
func (r *Registry[P]) awaitWriteBack(ctx context.Context, id string) error {
	r.flightMu.Lock()
	f, ok := r.inFlight[id]
	r.flightMu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s registry: waiting for write-back of %s: %w", r.name, id, ctx.Err())
	}
}

func (r *Registry[P]) writeBackLoop() {
	defer r.loopWG.Done()
	for e := range r.evictions {
		r.writeBack(e)
	}
}

func (r *Registry[P]) writeBack(e cachemanager.Eviction[P]) {
	log.Debug(log.CatRegistry, "Writing back expired entry", "registry", r.name, "id", e.ID,
		"idle_since", e.At.Format(time.RFC3339))

	r.pending.Add(1)
	r.store.SaveAsync(context.Background(), e.Aggregate).Then(func(saved bool, err error) {
		defer r.pending.Done()
		defer r.settle(e.ID)
		if saved {
			r.written.Add(1)
		} else {
			log.Error(log.CatRegistry, "Write-back failed", "registry", r.name, "id", e.ID, "error", err)
		}
		r.writeBacks.Publish(pubsub.ExpiredEvent, WriteBack{ID: e.ID, Saved: saved})
	})
}

// Close stops accepting evictions, waits for queued write-backs (bounded by
// ctx) and clears the cache without writing anything else back.
func (r *Registry[P]) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if r.evictions != nil {
		close(r.evictions)
	}
	r.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		r.loopWG.Wait()
		r.pending.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = fmt.Errorf("%s registry: write-backs still pending: %w", r.name, ctx.Err())
	}

	r.cache.Clear()
	r.writeBacks.Close()
	log.Info(log.CatRegistry, "Registry closed", "registry", r.name, "written_back", r.written.Load())
	return err
}
