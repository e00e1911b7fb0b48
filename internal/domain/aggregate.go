// Package domain holds the aggregate types managed by the registry.
//
// An Aggregate is an identity-keyed record whose payload is guarded by a
// mutex so the single cached copy can be read and mutated from many call
// sites. The package has no infrastructure dependencies.
package domain

import "sync"

// Aggregate is a record with an immutable id and a mutable payload.
type Aggregate[P any] struct {
	id string

	mu      sync.RWMutex
	payload P
}

// NewAggregate creates an aggregate with the given id and initial payload.
func NewAggregate[P any](id string, payload P) *Aggregate[P] {
	return &Aggregate[P]{id: id, payload: payload}
}

// ID returns the aggregate identifier.
func (a *Aggregate[P]) ID() string {
	return a.id
}

// Payload returns a copy of the current payload.
func (a *Aggregate[P]) Payload() P {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.payload
}

// SetPayload replaces the payload.
func (a *Aggregate[P]) SetPayload(p P) {
	a.mu.Lock()
	a.payload = p
	a.mu.Unlock()
}

// Update applies fn to the payload under the write lock and returns the
// new value.
func (a *Aggregate[P]) Update(fn func(P) P) P {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.payload = fn(a.payload)
	return a.payload
}

// Snapshot returns a detached copy of the aggregate.
func (a *Aggregate[P]) Snapshot() *Aggregate[P] {
	return NewAggregate(a.id, a.Payload())
}
