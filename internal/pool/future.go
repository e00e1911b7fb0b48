package pool

import (
	"context"
	"sync"
)

// Future is the eventual result of an asynchronous operation.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a completed future holding v.
func Resolved[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.complete(v, nil)
	return f
}

// Failed returns a completed future holding err.
func Failed[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.complete(zero, err)
	return f
}

func (f *Future[T]) complete(v T, err error) {
	f.once.Do(func() {
		f.value = v
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is available or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Get blocks until the result is available.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.value, f.err
}

// Then runs fn with the result once it is available, on its own goroutine.
func (f *Future[T]) Then(fn func(T, error)) {
	go func() {
		<-f.done
		fn(f.value, f.err)
	}()
}

// Map derives a future by applying fn to a successful result.
// Errors pass through without calling fn.
func Map[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	out := newFuture[U]()
	f.Then(func(v T, err error) {
		if err != nil {
			var zero U
			out.complete(zero, err)
			return
		}
		out.complete(fn(v))
	})
	return out
}

// All completes when every input has; the first error wins.
func All[T any](futures ...*Future[T]) *Future[[]T] {
	out := newFuture[[]T]()
	go func() {
		values := make([]T, len(futures))
		var firstErr error
		for i, f := range futures {
			v, err := f.Get()
			if err != nil && firstErr == nil {
				firstErr = err
			}
			values[i] = v
		}
		if firstErr != nil {
			out.complete(nil, firstErr)
			return
		}
		out.complete(values, nil)
	}()
	return out
}
