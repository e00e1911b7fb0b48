package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewWorkerPool_Defaults(t *testing.T) {
	p := NewWorkerPool(Config{})
	defer p.Close()

	require.Equal(t, DefaultMaxWorkers, p.MaxWorkers())
	require.Equal(t, DefaultQueueCapacity, cap(p.tasks))
}

func TestSubmit_ReturnsValue(t *testing.T) {
	p := NewWorkerPool(Config{MaxWorkers: 2})
	defer p.Close()

	f := Submit(p, "answer", func() (int, error) { return 42, nil })

	v, err := f.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestSubmit_ReturnsError(t *testing.T) {
	p := NewWorkerPool(Config{MaxWorkers: 1})
	defer p.Close()

	boom := errors.New("boom")
	f := Submit(p, "fail", func() (string, error) { return "", boom })

	_, err := f.Get()
	require.ErrorIs(t, err, boom)
}

func TestSubmit_PanicFailsFuture(t *testing.T) {
	p := NewWorkerPool(Config{MaxWorkers: 1})
	defer p.Close()

	f := Submit(p, "panic", func() (int, error) { panic("kaboom") })

	_, err := f.Get()
	require.Error(t, err)
	require.Contains(t, err.Error(), "kaboom")

	// The worker survives the panic.
	v, err := Submit(p, "after", func() (int, error) { return 1, nil }).Get()
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestSubmit_AfterCloseFails(t *testing.T) {
	p := NewWorkerPool(Config{MaxWorkers: 1})
	p.Close()

	_, err := Submit(p, "late", func() (int, error) { return 1, nil }).Get()
	require.ErrorIs(t, err, ErrPoolClosed)
	require.ErrorIs(t, p.Go("late", func() {}), ErrPoolClosed)
}

func TestClose_DrainsQueuedTasks(t *testing.T) {
	p := NewWorkerPool(Config{MaxWorkers: 1, QueueCapacity: 16})

	release := make(chan struct{})
	var ran atomic.Int32

	require.NoError(t, p.Go("blocker", func() { <-release }))
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Go("queued", func() { ran.Add(1) }))
	}

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()

	select {
	case <-closed:
		require.Fail(t, "Close returned before queued tasks ran")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(time.Second):
		require.Fail(t, "Close did not return")
	}

	require.Equal(t, int32(10), ran.Load())
	require.Equal(t, int64(0), p.InFlight())
}

func TestClose_Idempotent(t *testing.T) {
	p := NewWorkerPool(Config{MaxWorkers: 1})
	p.Close()
	p.Close()
}

func TestWorkerPool_BoundedConcurrency(t *testing.T) {
	p := NewWorkerPool(Config{MaxWorkers: 3})

	var (
		current atomic.Int32
		peak    atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, p.Go("work", func() {
			defer wg.Done()
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			current.Add(-1)
		}))
	}
	wg.Wait()
	p.Close()

	require.LessOrEqual(t, peak.Load(), int32(3))
}
