// Package pool provides the bounded worker pool that runs every durable-store
// operation and cache write-back, plus the Future type those operations
// return.
package pool

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/zjrosen/nametags/internal/log"
)

// DefaultMaxWorkers is the default number of worker goroutines.
const DefaultMaxWorkers = 4

// DefaultQueueCapacity is the default number of queued tasks before Go blocks.
const DefaultQueueCapacity = 256

// ErrPoolClosed is returned when work is submitted to a closed pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// Config holds configuration for the worker pool.
type Config struct {
	MaxWorkers    int // Worker goroutines (default: 4)
	QueueCapacity int // Buffered tasks before submitters block (default: 256)
}

type task struct {
	name string
	run  func()
}

// WorkerPool runs submitted tasks on a fixed set of goroutines.
// Close stops intake and waits until every queued task has run, so pending
// saves are never dropped on shutdown.
type WorkerPool struct {
	tasks      chan task
	maxWorkers int

	mu        sync.RWMutex // guards tasks against send-after-close
	closed    atomic.Bool
	wg        sync.WaitGroup
	inFlight  atomic.Int64
	completed atomic.Int64
}

// NewWorkerPool creates and starts a pool with the given configuration.
func NewWorkerPool(cfg Config) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}

	p := &WorkerPool{
		tasks:      make(chan task, cfg.QueueCapacity),
		maxWorkers: cfg.MaxWorkers,
	}

	p.wg.Add(cfg.MaxWorkers)
	for i := 0; i < cfg.MaxWorkers; i++ {
		go p.worker(i)
	}

	log.Debug(log.CatPool, "Worker pool started", "workers", cfg.MaxWorkers, "queue", cfg.QueueCapacity)
	return p
}

func (p *WorkerPool) worker(n int) {
	defer p.wg.Done()
	for t := range p.tasks {
		p.execute(n, t)
	}
}

func (p *WorkerPool) execute(n int, t task) {
	defer func() {
		p.inFlight.Add(-1)
		p.completed.Add(1)
		if r := recover(); r != nil {
			log.Error(log.CatPool, "Task panic recovered",
				"task", t.name,
				"worker", n,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	t.run()
}

// Go queues fn for execution. It blocks while the queue is full and returns
// ErrPoolClosed once Close has been called.
func (p *WorkerPool) Go(name string, fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.inFlight.Add(1)
	p.tasks <- task{name: name, run: fn}
	return nil
}

// Submit runs fn on the pool and returns a Future for its result.
// A panic inside fn fails the future instead of crashing the process.
func Submit[T any](p *WorkerPool, name string, fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	err := p.Go(name, func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				f.complete(zero, fmt.Errorf("task %s panicked: %v", name, r))
				panic(r)
			}
		}()
		v, err := fn()
		f.complete(v, err)
	})
	if err != nil {
		var zero T
		f.complete(zero, err)
	}
	return f
}

// Close stops accepting work and waits for queued and running tasks.
// Safe to call more than once.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed.Swap(true) {
		p.mu.Unlock()
		return
	}
	close(p.tasks)
	p.mu.Unlock()

	log.Debug(log.CatPool, "Draining worker pool", "pending", p.inFlight.Load())
	p.wg.Wait()
	log.Debug(log.CatPool, "Worker pool closed", "completed", p.completed.Load())
}

// InFlight returns the number of queued or running tasks.
func (p *WorkerPool) InFlight() int64 {
	return p.inFlight.Load()
}

// MaxWorkers returns the number of worker goroutines.
func (p *WorkerPool) MaxWorkers() int {
	return p.maxWorkers
}
