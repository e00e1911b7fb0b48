package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolved(t *testing.T) {
	v, err := Resolved("ok").Get()
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}

func TestFailed(t *testing.T) {
	boom := errors.New("boom")
	_, err := Failed[int](boom).Get()
	require.ErrorIs(t, err, boom)
}

func TestFuture_AwaitContextCancelled(t *testing.T) {
	f := newFuture[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFuture_CompleteOnce(t *testing.T) {
	f := newFuture[int]()
	f.complete(1, nil)
	f.complete(2, errors.New("ignored"))

	v, err := f.Get()
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestFuture_Then(t *testing.T) {
	f := newFuture[int]()
	got := make(chan int, 1)
	f.Then(func(v int, err error) { got <- v })

	f.complete(7, nil)

	select {
	case v := <-got:
		require.Equal(t, 7, v)
	case <-time.After(time.Second):
		require.Fail(t, "continuation did not run")
	}
}

func TestMap(t *testing.T) {
	doubled := Map(Resolved(21), func(v int) (int, error) { return v * 2, nil })
	v, err := doubled.Get()
	require.NoError(t, err)
	require.Equal(t, 42, v)

	boom := errors.New("boom")
	called := false
	_, err = Map(Failed[int](boom), func(v int) (int, error) {
		called = true
		return v, nil
	}).Get()
	require.ErrorIs(t, err, boom)
	require.False(t, called)
}

func TestAll(t *testing.T) {
	values, err := All(Resolved(1), Resolved(2), Resolved(3)).Get()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, values)

	boom := errors.New("boom")
	_, err = All(Resolved(1), Failed[int](boom)).Get()
	require.ErrorIs(t, err, boom)

	values, err = All[int]().Get()
	require.NoError(t, err)
	require.Empty(t, values)
}
