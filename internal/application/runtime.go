package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zjrosen/nametags/internal/cachemanager"
	"github.com/zjrosen/nametags/internal/config"
	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/log"
	"github.com/zjrosen/nametags/internal/modification"
	"github.com/zjrosen/nametags/internal/pool"
	"github.com/zjrosen/nametags/internal/registry"
	"github.com/zjrosen/nametags/internal/sessions"
	"github.com/zjrosen/nametags/internal/storage"
	"github.com/zjrosen/nametags/internal/store"
	"github.com/zjrosen/nametags/internal/tracing"
	"github.com/zjrosen/nametags/internal/watcher"
)

// Runtime owns every long-lived component built from a Config.
type Runtime struct {
	Config config.Config

	Pool      *pool.WorkerPool
	Backend   *storage.Backend
	Sessions  *sessions.Store
	Processor *modification.Processor

	Tags    *Tags
	Players *Players
	Editor  *Editor

	tracing *tracing.Provider
	watcher *watcher.Watcher
	watchWG sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// Open builds and starts the runtime. On error everything opened so far is
// released.
func Open(ctx context.Context, cfg config.Config) (rt *Runtime, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	r := &Runtime{Config: cfg}
	defer func() {
		if err != nil {
			_ = r.Close(context.Background())
		}
	}()

	r.tracing, err = tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	var storageOpts []storage.Option
	if r.tracing.Enabled() {
		storageOpts = append(storageOpts, storage.WithTracer(r.tracing.Tracer()))
	}

	r.Backend, err = storage.Open(ctx, cfg.Storage, storageOpts...)
	if err != nil {
		return nil, err
	}

	r.Pool = pool.NewWorkerPool(pool.Config{MaxWorkers: cfg.Workers.Max, QueueCapacity: cfg.Workers.QueueCapacity})
	asyncOpts := []store.AsyncOption{store.WithStartAttempts(cfg.StartAttempts)}

	playerReg := registry.New[domain.PlayerState](storage.PlayersCollection,
		store.NewAsync[domain.PlayerState](storage.PlayersCollection, r.Backend.Players, r.Pool, asyncOpts...))
	tagReg := registry.New[domain.Properties](storage.TagsCollection,
		store.NewAsync[domain.Properties](storage.TagsCollection, r.Backend.Tags, r.Pool, asyncOpts...),
		registry.WithExpiry(cachemanager.Policy{TTL: cfg.Cache.TagTTL, CleanupInterval: cfg.Cache.CleanupInterval}))

	r.Sessions = sessions.NewStore(sessions.WithTTL(cfg.Cache.SessionTTL), sessions.WithCleanupInterval(cfg.Cache.CleanupInterval))
	r.Tags = NewTags(tagReg)
	r.Players = NewPlayers(playerReg, r.Tags, r.Sessions)
	r.Processor = modification.NewProcessor(r.Sessions, tagReg, modification.WithPresence(r.Players))
	r.Editor = NewEditor(r.Sessions, r.Tags, r.Players, r.Processor)

	if err := playerReg.Start(ctx); err != nil {
		return nil, err
	}
	if err := tagReg.Start(ctx); err != nil {
		return nil, err
	}

	if cfg.WatchFiles && r.Backend.TagFiles != nil {
		if err := r.watchTagFiles(); err != nil {
			return nil, err
		}
	}

	log.Info(log.CatConfig, "Runtime started", "backend", cfg.Storage.Backend, "workers", cfg.Workers.Max,
		"tag_ttl", cfg.Cache.TagTTL, "watch_files", r.watcher != nil)
	return r, nil
}

func (r *Runtime) watchTagFiles() error {
	files := r.Backend.TagFiles
	w, err := watcher.New(watcher.DefaultConfig(files.Dir(), files.IDFromPath))
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		_ = w.Stop()
		return err
	}
	r.watcher = w

	r.watchWG.Add(1)
	go func() {
		defer r.watchWG.Done()
		for ids := range changes {
			r.SyncTags(context.Background(), ids)
		}
	}()
	return nil
}

// SyncTags drops cached tags whose stored record no longer matches the
// cached copy, so the next lookup reloads them. It returns the dropped ids.
// Records written by this process match and are kept.
func (r *Runtime) SyncTags(ctx context.Context, ids []string) []string {
	reg := r.Tags.Registry()
	var dropped []string
	for _, id := range ids {
		if !reg.ExistsInCache(id) {
			continue
		}
		stored, err := reg.FindInInfrastructure(ctx, id).Await(ctx)
		if err != nil {
			log.ErrorErr(log.CatWatcher, "Changed tag could not be read, keeping cached copy", err, "tag", id)
			continue
		}
		cached := reg.FindInCache(id)
		if cached == nil {
			continue
		}
		if stored != nil && stored.Payload().Equal(cached.Payload()) {
			continue
		}
		if reg.Invalidate(id) {
			dropped = append(dropped, id)
			log.Info(log.CatWatcher, "Tag changed on disk, cached copy dropped", "tag", id, "deleted", stored == nil)
		}
	}
	return dropped
}

// Close shuts down in dependency order: players are saved, tag write-backs
// drain, the pool finishes in-flight work, then the backend closes.
func (r *Runtime) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		var errs []error
		if r.watcher != nil {
			errs = append(errs, r.watcher.Stop())
			r.watchWG.Wait()
		}
		if r.Players != nil {
			errs = append(errs, r.Players.DisconnectAll(ctx))
			errs = append(errs, r.Players.Registry().Close(ctx))
		}
		if r.Tags != nil {
			errs = append(errs, r.Tags.Registry().Close(ctx))
		}
		if r.Processor != nil {
			r.Processor.Close()
		}
		if r.Sessions != nil {
			r.Sessions.Close()
		}
		if r.Pool != nil {
			r.Pool.Close()
		}
		if r.Backend != nil {
			errs = append(errs, r.Backend.Close())
		}
		if r.tracing != nil {
			errs = append(errs, r.tracing.Shutdown(ctx))
		}
		r.closeErr = errors.Join(errs...)
		log.Info(log.CatConfig, "Runtime closed", "error", r.closeErr)
	})
	return r.closeErr
}
