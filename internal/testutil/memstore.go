package testutil

import (
	"context"
	"sync"

	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/store"
)

// Op names a driver operation for failure injection and call counting.
type Op string

const (
	OpStart  Op = "start"
	OpFind   Op = "find"
	OpExists Op = "exists"
	OpSave   Op = "save"
	OpDelete Op = "delete"
)

// MemoryDriver is an in-memory store.Driver for tests. Payloads are kept
// encoded, so a Find never returns the instance that was saved.
type MemoryDriver[P any] struct {
	mu      sync.Mutex
	records map[string][]byte
	codec   store.Codec[P]

	failures map[Op][]error
	sticky   map[Op]error
	calls    map[Op]int
	gate     map[Op]chan struct{}
}

var _ store.Driver[domain.Properties] = (*MemoryDriver[domain.Properties])(nil)

// NewMemoryDriver returns an empty driver.
func NewMemoryDriver[P any]() *MemoryDriver[P] {
	return &MemoryDriver[P]{
		records:  make(map[string][]byte),
		codec:    store.JSONCodec[P]{},
		failures: make(map[Op][]error),
		sticky:   make(map[Op]error),
		calls:    make(map[Op]int),
		gate:     make(map[Op]chan struct{}),
	}
}

// FailNext queues err for the next call of op.
func (d *MemoryDriver[P]) FailNext(op Op, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = append(d.failures[op], err)
}

// FailAlways makes every call of op return err until cleared with nil.
func (d *MemoryDriver[P]) FailAlways(op Op, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.sticky, op)
		return
	}
	d.sticky[op] = err
}

// Hold blocks calls of op until the returned release func is called.
func (d *MemoryDriver[P]) Hold(op Op) (release func()) {
	ch := make(chan struct{})
	d.mu.Lock()
	d.gate[op] = ch
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.gate, op)
			d.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns how often op was invoked.
func (d *MemoryDriver[P]) Calls(op Op) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// Put seeds a record without counting a call.
func (d *MemoryDriver[P]) Put(aggregate *domain.Aggregate[P]) {
	data, err := d.codec.Encode(aggregate.Payload())
	if err != nil {
		panic(err)
	}
	d.mu.Lock()
	d.records[aggregate.ID()] = data
	d.mu.Unlock()
}

// Len returns the number of stored records.
func (d *MemoryDriver[P]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

// Has reports whether id is stored, without counting a call.
func (d *MemoryDriver[P]) Has(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.records[id]
	return ok
}

// enter records the call and returns the injected failure, if any.
func (d *MemoryDriver[P]) enter(ctx context.Context, op Op) error {
	d.mu.Lock()
	d.calls[op]++
	gate := d.gate[op]
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if queued := d.failures[op]; len(queued) > 0 {
		d.failures[op] = queued[1:]
		return queued[0]
	}
	return d.sticky[op]
}

func (d *MemoryDriver[P]) Start(ctx context.Context) error {
	return d.enter(ctx, OpStart)
}

func (d *MemoryDriver[P]) Find(ctx context.Context, id string) (*domain.Aggregate[P], error) {
	if err := d.enter(ctx, OpFind); err != nil {
		return nil, err
	}
	d.mu.Lock()
	data, ok := d.records[id]
	d.mu.Unlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	payload, err := d.codec.Decode(data)
	if err != nil {
		return nil, err
	}
	return domain.NewAggregate(id, payload), nil
}

func (d *MemoryDriver[P]) Exists(ctx context.Context, id string) (bool, error) {
	if err := d.enter(ctx, OpExists); err != nil {
		return false, err
	}
	return d.Has(id), nil
}

func (d *MemoryDriver[P]) Save(ctx context.Context, aggregate *domain.Aggregate[P]) error {
	if err := d.enter(ctx, OpSave); err != nil {
		return err
	}
	data, err := d.codec.Encode(aggregate.Payload())
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.records[aggregate.ID()] = data
	d.mu.Unlock()
	return nil
}

func (d *MemoryDriver[P]) Delete(ctx context.Context, id string) (bool, error) {
	if err := d.enter(ctx, OpDelete); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.records[id]
	delete(d.records, id)
	return ok, nil
}
