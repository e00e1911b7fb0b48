// Package storage builds the configured backend once and hands out the
// player and tag drivers that share its client.
package storage

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/nametags/internal/config"
	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/log"
	"github.com/zjrosen/nametags/internal/store"
	"github.com/zjrosen/nametags/internal/store/filestore"
	"github.com/zjrosen/nametags/internal/store/postgres"
	"github.com/zjrosen/nametags/internal/store/redisstore"
	"github.com/zjrosen/nametags/internal/store/sqlite"
)

// Collection names shared by every backend.
const (
	PlayersCollection = "players"
	TagsCollection    = "tags"
)

// Backend owns the storage client and the drivers built on it.
type Backend struct {
	Kind    string
	Players store.Driver[domain.PlayerState]
	Tags    store.Driver[domain.Properties]

	// TagFiles is set for the file backend so record changes on disk can be
	// mapped back to tag ids.
	TagFiles *filestore.Driver[domain.Properties]

	closeOnce sync.Once
	closeFn   func() error
	closeErr  error
}

// Option configures Open.
type Option func(*options)

type options struct {
	tracer trace.Tracer
}

// WithTracer wraps both drivers in spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// Open connects to the backend described by cfg. Drivers are not started;
// the registry starts them.
func Open(ctx context.Context, cfg config.StorageConfig, opts ...Option) (*Backend, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := config.ValidateStorage(cfg); err != nil {
		return nil, err
	}

	b := &Backend{Kind: cfg.Backend, closeFn: func() error { return nil }}

	switch cfg.Backend {
	case config.BackendFile:
		b.Players = filestore.New[domain.PlayerState](cfg.File.Dir, PlayersCollection, store.YAMLCodec[domain.PlayerState]{})
		b.TagFiles = filestore.New[domain.Properties](cfg.File.Dir, TagsCollection, store.YAMLCodec[domain.Properties]{})
		b.Tags = b.TagFiles

	case config.BackendSQLite:
		db, err := sqlite.NewDB(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		players, err := sqlite.New[domain.PlayerState](db, PlayersCollection, store.JSONCodec[domain.PlayerState]{})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		tags, err := sqlite.New[domain.Properties](db, TagsCollection, store.JSONCodec[domain.Properties]{})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		b.Players, b.Tags, b.closeFn = players, tags, db.Close

	case config.BackendRedis:
		client, err := redisstore.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		b.Players = redisstore.New[domain.PlayerState](client, cfg.Redis.Prefix, PlayersCollection, store.JSONCodec[domain.PlayerState]{})
		b.Tags = redisstore.New[domain.Properties](client, cfg.Redis.Prefix, TagsCollection, store.JSONCodec[domain.Properties]{})
		b.closeFn = client.Close

	case config.BackendPostgres:
		db, err := postgres.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		players, err := postgres.New[domain.PlayerState](db, PlayersCollection)
		if err != nil {
			db.Close()
			return nil, err
		}
		tags, err := postgres.New[domain.Properties](db, TagsCollection)
		if err != nil {
			db.Close()
			return nil, err
		}
		b.Players, b.Tags = players, tags
		b.closeFn = func() error { db.Close(); return nil }
	}

	if o.tracer != nil {
		b.Players = store.NewTraced(b.Players, o.tracer, cfg.Backend, PlayersCollection)
		b.Tags = store.NewTraced(b.Tags, o.tracer, cfg.Backend, TagsCollection)
	}

	log.Info(log.CatStore, "Storage backend opened", "backend", cfg.Backend)
	return b, nil
}

// Close releases the shared client. Safe to call more than once.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.closeFn()
		log.Debug(log.CatStore, "Storage backend closed", "backend", b.Kind, "error", b.closeErr)
	})
	return b.closeErr
}
