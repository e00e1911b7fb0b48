// Package filestore persists each aggregate as one file under
// <root>/<collection>/<id>.<ext>. Writes go to a temp file that is renamed
// into place, so a crash never leaves a truncated record behind.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/store"
)

const backend = "file"

// ErrInvalidID is returned for ids that cannot be used as file names.
var ErrInvalidID = errors.New("invalid record id")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Driver is a file-per-record store.Driver.
type Driver[P any] struct {
	dir        string
	collection string
	codec      store.Codec[P]

	// mu serializes writers per driver; readers rely on atomic rename.
	mu sync.Mutex
}

var _ store.Driver[domain.Properties] = (*Driver[domain.Properties])(nil)

// New returns a driver storing collection under root using codec.
func New[P any](root, collection string, codec store.Codec[P]) *Driver[P] {
	return &Driver[P]{
		dir:        filepath.Join(root, collection),
		collection: collection,
		codec:      codec,
	}
}

// Dir returns the directory holding this collection's records.
func (d *Driver[P]) Dir() string {
	return d.dir
}

// IDFromPath returns the record id for a file in Dir, or false when the path
// is not one of this driver's record files.
func (d *Driver[P]) IDFromPath(path string) (string, bool) {
	if filepath.Clean(filepath.Dir(path)) != filepath.Clean(d.dir) {
		return "", false
	}
	base := filepath.Base(path)
	ext := "." + d.codec.Extension()
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, ext) {
		return "", false
	}
	id := strings.TrimSuffix(base, ext)
	if checkID(id) != nil {
		return "", false
	}
	return id, true
}

func checkID(id string) error {
	if id == "." || id == ".." || !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func (d *Driver[P]) path(id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	return filepath.Join(d.dir, id+"."+d.codec.Extension()), nil
}

func (d *Driver[P]) Start(ctx context.Context) error {
	if err := os.MkdirAll(d.dir, 0750); err != nil {
		return store.Wrap(backend, d.collection, "start", "", fmt.Errorf("create directory: %w", err))
	}
	return nil
}

func (d *Driver[P]) Find(ctx context.Context, id string) (*domain.Aggregate[P], error) {
	path, err := d.path(id)
	if err != nil {
		return nil, store.Wrap(backend, d.collection, "find", id, err)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: id is validated above
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Wrap(backend, d.collection, "find", id, err)
	}

	payload, err := d.codec.Decode(data)
	if err != nil {
		return nil, store.Wrap(backend, d.collection, "find", id, err)
	}
	return domain.NewAggregate(id, payload), nil
}

func (d *Driver[P]) Exists(ctx context.Context, id string) (bool, error) {
	path, err := d.path(id)
	if err != nil {
		return false, store.Wrap(backend, d.collection, "exists", id, err)
	}
	_, err = os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, store.Wrap(backend, d.collection, "exists", id, err)
	}
	return true, nil
}

func (d *Driver[P]) Save(ctx context.Context, aggregate *domain.Aggregate[P]) error {
	id := aggregate.ID()
	path, err := d.path(id)
	if err != nil {
		return store.Wrap(backend, d.collection, "save", id, err)
	}

	data, err := d.codec.Encode(aggregate.Payload())
	if err != nil {
		return store.Wrap(backend, d.collection, "save", id, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := writeAtomic(d.dir, path, data); err != nil {
		return store.Wrap(backend, d.collection, "save", id, err)
	}
	return nil
}

func (d *Driver[P]) Delete(ctx context.Context, id string) (bool, error) {
	path, err := d.path(id)
	if err != nil {
		return false, store.Wrap(backend, d.collection, "delete", id, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, store.Wrap(backend, d.collection, "delete", id, err)
	}
	return true, nil
}

func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
