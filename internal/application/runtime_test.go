package application

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/nametags/internal/config"
	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/modification"
)

func fileConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Storage.File.Dir = t.TempDir()
	cfg.Cache.CleanupInterval = 10 * time.Millisecond
	return cfg
}

func openRuntime(t *testing.T, cfg config.Config) *Runtime {
	t.Helper()
	rt, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Workers.Max = 0

	_, err := Open(context.Background(), cfg)
	require.Error(t, err)
}

func TestRuntime_StatePersistsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	cfg := fileConfig(t)

	rt, err := Open(ctx, cfg)
	require.NoError(t, err)

	_, saved, err := rt.Tags.Create(ctx, "vip")
	require.NoError(t, err)
	ok, err := saved.Await(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	rt.Players.Connect(ctx, "steve")
	require.NoError(t, rt.Players.Select(ctx, "steve", "vip"))
	require.NoError(t, rt.Editor.Begin(ctx, "steve", "vip"))
	require.NoError(t, rt.Editor.Arm("steve", modification.ContextPrefix))
	res, handled, err := rt.Editor.Submit(ctx, "steve", "&6[VIP] ")
	require.NoError(t, err)
	require.True(t, handled)
	require.Equal(t, modification.OutcomeModified, res.Outcome)

	require.NoError(t, rt.Close(ctx))
	require.NoError(t, rt.Close(ctx), "close is idempotent")
	require.FileExists(t, filepath.Join(cfg.Storage.File.Dir, "tags", "vip.yml"))
	require.FileExists(t, filepath.Join(cfg.Storage.File.Dir, "players", "steve.yml"))

	rt = openRuntime(t, cfg)
	player := rt.Players.Connect(ctx, "steve")
	require.Equal(t, "vip", player.Payload().SelectedTag)
	plate, err := rt.Players.Nameplate(ctx, "steve")
	require.NoError(t, err)
	require.Equal(t, "&6[VIP] ", plate.Properties.Prefix.String())
}

func TestRuntime_SQLiteBackend(t *testing.T) {
	ctx := context.Background()
	cfg := fileConfig(t)
	cfg.Storage.Backend = config.BackendSQLite
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "nametags.db")

	rt := openRuntime(t, cfg)
	_, saved, err := rt.Tags.Create(ctx, "admin")
	require.NoError(t, err)
	ok, err := saved.Await(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, rt.Tags.Registry().ExistsInInfrastructure(ctx, "admin"))
}

func TestRuntime_ExpiredTagIsWrittenBack(t *testing.T) {
	ctx := context.Background()
	cfg := fileConfig(t)
	cfg.Cache.TagTTL = 40 * time.Millisecond

	rt := openRuntime(t, cfg)
	tag, saved, err := rt.Tags.Create(ctx, "vip")
	require.NoError(t, err)
	_, _ = saved.Await(ctx)
	tag.Update(func(p domain.Properties) domain.Properties { return p.WithColor(domain.ColorAqua) })

	require.Eventually(t, func() bool { return rt.Tags.Registry().WrittenBack() == 1 },
		2*time.Second, 10*time.Millisecond)
	require.Nil(t, rt.Tags.Registry().FindInCache("vip"))

	reloaded := rt.Tags.Find(ctx, "vip")
	require.NotNil(t, reloaded)
	require.Equal(t, domain.ColorAqua, reloaded.Payload().Color)
}

func TestRuntime_SyncTags(t *testing.T) {
	ctx := context.Background()
	rt := openRuntime(t, fileConfig(t))
	_, saved, err := rt.Tags.Create(ctx, "vip")
	require.NoError(t, err)
	_, _ = saved.Await(ctx)

	require.Empty(t, rt.SyncTags(ctx, []string{"vip", "ghost"}), "own writes are kept")

	edited := domain.NewTag("vip")
	edited.SetPayload(domain.Properties{Color: domain.ColorRed})
	require.NoError(t, rt.Backend.TagFiles.Save(ctx, edited))

	require.Equal(t, []string{"vip"}, rt.SyncTags(ctx, []string{"vip"}))
	require.Nil(t, rt.Tags.Registry().FindInCache("vip"))
	require.Equal(t, domain.ColorRed, rt.Tags.Find(ctx, "vip").Payload().Color)
}

func TestRuntime_WatchFilesReloadsExternalEdits(t *testing.T) {
	ctx := context.Background()
	cfg := fileConfig(t)
	cfg.WatchFiles = true
	rt := openRuntime(t, cfg)

	_, saved, err := rt.Tags.Create(ctx, "vip")
	require.NoError(t, err)
	_, _ = saved.Await(ctx)

	path := filepath.Join(cfg.Storage.File.Dir, "tags", "vip.yml")
	require.NoError(t, os.WriteFile(path, []byte("color: green\n"), 0600))

	require.Eventually(t, func() bool { return !rt.Tags.Registry().ExistsInCache("vip") },
		3*time.Second, 20*time.Millisecond)
	require.Equal(t, domain.ColorGreen, rt.Tags.Find(ctx, "vip").Payload().Color)
}
