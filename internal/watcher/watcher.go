// Package watcher watches a record directory and reports, debounced, which
// record ids changed on disk.
package watcher

import (
	"fmt"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/nametags/internal/log"
)

// Matcher maps a changed path to a record id. Paths it rejects are ignored.
type Matcher func(path string) (id string, ok bool)

// Watcher monitors one directory and sends batches of changed ids.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	dir       string
	match     Matcher
	debounce  time.Duration
	onChange  chan []string
	done      chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	Dir         string
	Match       Matcher
	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(dir string, match Matcher) Config {
	return Config{
		Dir:         dir,
		Match:       match,
		DebounceDur: 500 * time.Millisecond,
	}
}

// New creates a new directory watcher.
func New(cfg Config) (*Watcher, error) {
	if cfg.Match == nil {
		return nil, fmt.Errorf("watcher for %s: no matcher", cfg.Dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		dir:       cfg.Dir,
		match:     cfg.Match,
		debounce:  cfg.DebounceDur,
		onChange:  make(chan []string, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching the directory, which must exist.
// Returns a channel that receives the sorted ids changed since the last
// batch once writes have been quiet for the debounce interval.
func (w *Watcher) Start() (<-chan []string, error) {
	if err := w.fsWatcher.Add(w.dir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", w.dir, err)
	}

	go w.loop()

	log.Debug(log.CatWatcher, "Watching record directory", "dir", w.dir, "debounce", w.debounce)
	return w.onChange, nil
}

// Stop terminates the watcher and releases resources. The channel returned
// by Start is closed once pending events are abandoned.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

// loop processes file system events with debouncing. The change channel
// is closed when it returns.
func (w *Watcher) loop() {
	defer close(w.onChange)

	var (
		timer   *time.Timer
		pending = map[string]struct{}{}
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			id, relevant := w.isRelevantEvent(event)
			if !relevant {
				continue
			}
			pending[id] = struct{}{}

			// Reset or start debounce timer
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					// Drain the timer channel if it already fired
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for id := range pending {
				batch = append(batch, id)
			}
			sort.Strings(batch)

			select {
			case w.onChange <- batch:
				pending = map[string]struct{}{}
			case <-w.done:
				return
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatcher, "File watch error", err, "dir", w.dir)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// isRelevantEvent maps an event to a record id. Chmod alone is ignored.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) (string, bool) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return "", false
	}
	return w.match(event.Name)
}
