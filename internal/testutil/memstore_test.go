package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/store"
)

func TestMemoryDriver_RoundTripDetachesInstances(t *testing.T) {
	d := NewMemoryDriver[domain.Properties]()
	ctx := context.Background()

	tag := domain.NewTag("vip")
	require.NoError(t, d.Save(ctx, tag))

	got, err := d.Find(ctx, "vip")
	require.NoError(t, err)
	require.NotSame(t, tag, got)
	require.True(t, tag.Payload().Equal(got.Payload()))

	_, err = d.Find(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryDriver_FailureInjection(t *testing.T) {
	d := NewMemoryDriver[domain.Properties]()
	ctx := context.Background()
	boom := errors.New("boom")

	d.FailNext(OpSave, boom)
	require.ErrorIs(t, d.Save(ctx, domain.NewTag("vip")), boom)
	require.NoError(t, d.Save(ctx, domain.NewTag("vip")))
	require.Equal(t, 2, d.Calls(OpSave))

	d.FailAlways(OpExists, boom)
	for i := 0; i < 3; i++ {
		_, err := d.Exists(ctx, "vip")
		require.ErrorIs(t, err, boom)
	}
	d.FailAlways(OpExists, nil)
	ok, err := d.Exists(ctx, "vip")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryDriver_Hold(t *testing.T) {
	d := NewMemoryDriver[domain.Properties]()
	release := d.Hold(OpSave)

	done := make(chan error, 1)
	go func() { done <- d.Save(context.Background(), domain.NewTag("vip")) }()

	select {
	case <-done:
		require.Fail(t, "save should block while held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	require.NoError(t, <-done)
	require.True(t, d.Has("vip"))
}

func TestBuilder_StandardTags(t *testing.T) {
	d := NewMemoryDriver[domain.Properties]()
	NewBuilder(t).WithStandardTags().BuildTags(d)

	require.Equal(t, 3, d.Len())
	admin, err := d.Find(context.Background(), "admin")
	require.NoError(t, err)
	require.Equal(t, domain.ColorRed, admin.Payload().Color)
	require.Equal(t, "[Admin] ", admin.Payload().Prefix.Plain())
}
