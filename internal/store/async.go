package store

import (
	"context"
	"errors"
	"time"

	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/log"
	"github.com/zjrosen/nametags/internal/pool"
)

const (
	// DefaultStartAttempts is how often Start retries a failing driver.
	DefaultStartAttempts = 3

	// DefaultStartBackoff is the delay before the first Start retry; it
	// doubles after each failed attempt.
	DefaultStartBackoff = 250 * time.Millisecond
)

// Async runs a Driver on the worker pool. Backend failures are logged here
// and never escape as panics: Find yields a failed future, the boolean
// operations yield false.
type Async[P any] struct {
	collection string
	driver     Driver[P]
	pool       *pool.WorkerPool

	startAttempts int
	startBackoff  time.Duration
}

// AsyncOption configures an Async store.
type AsyncOption func(*asyncOptions)

type asyncOptions struct {
	startAttempts int
	startBackoff  time.Duration
}

// WithStartAttempts sets how many times Start tries the driver.
func WithStartAttempts(n int) AsyncOption {
	return func(o *asyncOptions) {
		if n > 0 {
			o.startAttempts = n
		}
	}
}

// WithStartBackoff sets the initial delay between Start attempts.
func WithStartBackoff(d time.Duration) AsyncOption {
	return func(o *asyncOptions) {
		if d >= 0 {
			o.startBackoff = d
		}
	}
}

// NewAsync wraps driver so its operations run on p.
func NewAsync[P any](collection string, driver Driver[P], p *pool.WorkerPool, opts ...AsyncOption) *Async[P] {
	o := asyncOptions{
		startAttempts: DefaultStartAttempts,
		startBackoff:  DefaultStartBackoff,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Async[P]{
		collection:    collection,
		driver:        driver,
		pool:          p,
		startAttempts: o.startAttempts,
		startBackoff:  o.startBackoff,
	}
}

// Collection returns the aggregate subtype this store persists.
func (a *Async[P]) Collection() string {
	return a.collection
}

// Start initializes the driver, retrying with exponential backoff. It
// returns false once every attempt has failed or ctx is done.
func (a *Async[P]) Start(ctx context.Context) bool {
	backoff := a.startBackoff
	for attempt := 1; attempt <= a.startAttempts; attempt++ {
		err := a.driver.Start(ctx)
		if err == nil {
			log.Debug(log.CatStore, "Store started", "collection", a.collection, "attempt", attempt)
			return true
		}
		log.ErrorErr(log.CatStore, "Store start failed", err,
			"collection", a.collection, "attempt", attempt, "of", a.startAttempts)

		if attempt == a.startAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return false
}

// FindAsync fetches the record. Absence resolves to nil; a backend failure
// fails the future.
func (a *Async[P]) FindAsync(ctx context.Context, id string) *pool.Future[*domain.Aggregate[P]] {
	return pool.Submit(a.pool, a.collection+".find", func() (*domain.Aggregate[P], error) {
		agg, err := a.driver.Find(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			log.ErrorErr(log.CatStore, "Find failed", err, "collection", a.collection, "id", id)
			return nil, err
		}
		return agg, nil
	})
}

// ExistsAsync reports whether the record exists; failures resolve to false.
func (a *Async[P]) ExistsAsync(ctx context.Context, id string) *pool.Future[bool] {
	return pool.Submit(a.pool, a.collection+".exists", func() (bool, error) {
		ok, err := a.driver.Exists(ctx, id)
		if err != nil {
			log.ErrorErr(log.CatStore, "Exists failed", err, "collection", a.collection, "id", id)
			return false, nil
		}
		return ok, nil
	})
}

// SaveAsync upserts the aggregate; it resolves to false on failure.
// The payload is captured when the task runs, so the latest state wins.
func (a *Async[P]) SaveAsync(ctx context.Context, aggregate *domain.Aggregate[P]) *pool.Future[bool] {
	return pool.Submit(a.pool, a.collection+".save", func() (bool, error) {
		if err := a.driver.Save(ctx, aggregate); err != nil {
			log.ErrorErr(log.CatStore, "Save failed", err, "collection", a.collection, "id", aggregate.ID())
			return false, nil
		}
		return true, nil
	})
}

// DeleteAsync removes the record. It resolves to true only when a record
// was removed.
func (a *Async[P]) DeleteAsync(ctx context.Context, id string) *pool.Future[bool] {
	return pool.Submit(a.pool, a.collection+".delete", func() (bool, error) {
		removed, err := a.driver.Delete(ctx, id)
		if err != nil {
			log.ErrorErr(log.CatStore, "Delete failed", err, "collection", a.collection, "id", id)
			return false, nil
		}
		return removed, nil
	})
}
