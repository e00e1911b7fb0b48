package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/nametags/internal/config"
	"github.com/zjrosen/nametags/internal/domain"
)

func exercise(t *testing.T, b *Backend) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, b.Players.Start(ctx))
	require.NoError(t, b.Tags.Start(ctx))

	require.NoError(t, b.Players.Save(ctx, domain.NewAggregate("actor-1", domain.PlayerState{SelectedTag: "vip"})))
	require.NoError(t, b.Tags.Save(ctx, domain.NewTag("vip")))

	player, err := b.Players.Find(ctx, "actor-1")
	require.NoError(t, err)
	require.Equal(t, "vip", player.Payload().SelectedTag)

	ok, err := b.Tags.Exists(ctx, "actor-1")
	require.NoError(t, err)
	require.False(t, ok, "players and tags are separate collections")
}

func TestOpen_File(t *testing.T) {
	cfg := config.Defaults().Storage
	cfg.File.Dir = t.TempDir()

	b, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, b.TagFiles)
	require.Equal(t, filepath.Join(cfg.File.Dir, TagsCollection), b.TagFiles.Dir())

	exercise(t, b)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

func TestOpen_SQLite(t *testing.T) {
	cfg := config.Defaults().Storage
	cfg.Backend = config.BackendSQLite
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "nametags.db")

	b, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	require.Nil(t, b.TagFiles)

	exercise(t, b)
	require.NoError(t, b.Close())
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := config.Defaults().Storage
	cfg.Backend = "mongo"

	_, err := Open(context.Background(), cfg)
	require.Error(t, err)
}

func TestOpen_RedisUnreachable(t *testing.T) {
	cfg := config.Defaults().Storage
	cfg.Backend = config.BackendRedis
	cfg.Redis.URL = "redis://127.0.0.1:1/0"

	_, err := Open(context.Background(), cfg)
	require.Error(t, err)
}

func TestOpen_WithTracer(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	cfg := config.Defaults().Storage
	cfg.File.Dir = t.TempDir()

	b, err := Open(context.Background(), cfg, WithTracer(provider.Tracer("test")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.Tags.Start(context.Background()))
	require.Len(t, recorder.Ended(), 1)
	require.Equal(t, "store.tags.start", recorder.Ended()[0].Name())
}
