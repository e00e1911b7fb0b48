package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/store"
	"github.com/zjrosen/nametags/internal/testutil"
)

func newDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "nametags.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTagDriver(t *testing.T, db *DB) *Driver[domain.Properties] {
	t.Helper()
	d, err := New[domain.Properties](db, "tags", store.JSONCodec[domain.Properties]{})
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	return d
}

func TestNew_RejectsBadTableName(t *testing.T) {
	_, err := New[domain.Properties](newDB(t), "tags; DROP TABLE x", store.JSONCodec[domain.Properties]{})
	require.Error(t, err)
}

func TestStart_Idempotent(t *testing.T) {
	d := newTagDriver(t, newDB(t))
	require.NoError(t, d.Start(context.Background()))
}

func TestDriver_CRUD(t *testing.T) {
	d := newTagDriver(t, newDB(t))
	ctx := context.Background()
	testutil.NewBuilder(t).WithStandardTags().BuildTags(d)

	vip, err := d.Find(ctx, "vip")
	require.NoError(t, err)
	require.Equal(t, domain.ColorGold, vip.Payload().Color)
	require.Equal(t, "[VIP] ", vip.Payload().Prefix.Plain())

	vip.Update(func(p domain.Properties) domain.Properties { return p.WithPrefix(nil) })
	require.NoError(t, d.Save(ctx, vip))

	again, err := d.Find(ctx, "vip")
	require.NoError(t, err)
	require.Nil(t, again.Payload().Prefix)

	ok, err := d.Exists(ctx, "member")
	require.NoError(t, err)
	require.True(t, ok)

	removed, err := d.Delete(ctx, "member")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = d.Delete(ctx, "member")
	require.NoError(t, err)
	require.False(t, removed)

	_, err = d.Find(ctx, "member")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDriver_CollectionsShareOneDB(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	tags := newTagDriver(t, db)
	players, err := New[domain.PlayerState](db, "players", store.JSONCodec[domain.PlayerState]{})
	require.NoError(t, err)
	require.NoError(t, players.Start(ctx))

	require.NoError(t, tags.Save(ctx, domain.NewTag("same-id")))

	ok, err := players.Exists(ctx, "same-id")
	require.NoError(t, err)
	require.False(t, ok, "collections are separate namespaces")
}

func TestDriver_MissingTableFails(t *testing.T) {
	d, err := New[domain.Properties](newDB(t), "never_started", store.JSONCodec[domain.Properties]{})
	require.NoError(t, err)

	_, err = d.Find(context.Background(), "vip")
	var de *store.DriverError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "sqlite", de.Backend)
}

// TestDriver_SaveFindRoundTrip checks that any saved player state is read
// back unchanged.
func TestDriver_SaveFindRoundTrip(t *testing.T) {
	db := newDB(t)
	d, err := New[domain.PlayerState](db, "players", store.JSONCodec[domain.PlayerState]{})
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))

	rapid.Check(t, func(r *rapid.T) {
		id := rapid.StringMatching(`[a-f0-9-]{1,36}`).Draw(r, "id")
		selected := rapid.StringMatching(`[A-Za-z0-9_-]{0,32}`).Draw(r, "selected")

		player := domain.NewAggregate(id, domain.PlayerState{SelectedTag: selected})
		require.NoError(r, d.Save(context.Background(), player))

		got, err := d.Find(context.Background(), id)
		require.NoError(r, err)
		require.Equal(r, player.Payload(), got.Payload())
	})
}
