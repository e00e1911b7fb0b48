// Package store defines the durable-storage contract for aggregates.
//
// A Driver is the synchronous, context-aware adapter each backend implements
// (file, sqlite, postgres, redis). Async runs a Driver on the shared worker
// pool and converts failures into failed futures or false results so that
// callers never see a raw backend error on the hot path.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zjrosen/nametags/internal/domain"
)

// ErrNotFound is returned by Driver.Find when no record exists for the id.
var ErrNotFound = errors.New("record not found")

// Driver is a point-lookup store over a single string key.
type Driver[P any] interface {
	// Start prepares the backend (directories, tables, connectivity).
	// It must be safe to call more than once.
	Start(ctx context.Context) error
	Find(ctx context.Context, id string) (*domain.Aggregate[P], error)
	Exists(ctx context.Context, id string) (bool, error)
	// Save inserts the record or replaces an existing one.
	Save(ctx context.Context, aggregate *domain.Aggregate[P]) error
	// Delete reports whether a record was removed.
	Delete(ctx context.Context, id string) (bool, error)
}

// DriverError tags a backend failure with the operation that produced it.
type DriverError struct {
	Backend    string
	Collection string
	Op         string
	ID         string
	Err        error
}

func (e *DriverError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s %s: %v", e.Backend, e.Collection, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s %s %q: %v", e.Backend, e.Collection, e.Op, e.ID, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// Wrap returns err tagged as a DriverError, or nil when err is nil.
// ErrNotFound is returned unchanged so errors.Is checks stay cheap.
func Wrap(backend, collection, op, id string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return &DriverError{Backend: backend, Collection: collection, Op: op, ID: id, Err: err}
}
