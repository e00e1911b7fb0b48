package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/store"
)

const backend = "sqlite"

var tablePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Driver is a store.Driver over one SQLite table.
type Driver[P any] struct {
	db    *DB
	table string
	codec store.Codec[P]
}

var _ store.Driver[domain.PlayerState] = (*Driver[domain.PlayerState])(nil)

// New returns a driver for table. The table name must be a lowercase SQL
// identifier since it is interpolated into statements.
func New[P any](db *DB, table string, codec store.Codec[P]) (*Driver[P], error) {
	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Driver[P]{db: db, table: table, codec: codec}, nil
}

func (d *Driver[P]) Start(ctx context.Context) error {
	_, err := d.db.conn.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			payload TEXT NOT NULL
		)`, d.table))
	return store.Wrap(backend, d.table, "start", "", err)
}

func (d *Driver[P]) Find(ctx context.Context, id string) (*domain.Aggregate[P], error) {
	var payload string
	err := d.db.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT payload FROM %s WHERE id = ?`, d.table), id,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Wrap(backend, d.table, "find", id, err)
	}

	decoded, err := d.codec.Decode([]byte(payload))
	if err != nil {
		return nil, store.Wrap(backend, d.table, "find", id, err)
	}
	return domain.NewAggregate(id, decoded), nil
}

func (d *Driver[P]) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := d.db.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, d.table), id,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, store.Wrap(backend, d.table, "exists", id, err)
	}
	return true, nil
}

func (d *Driver[P]) Save(ctx context.Context, aggregate *domain.Aggregate[P]) error {
	data, err := d.codec.Encode(aggregate.Payload())
	if err != nil {
		return store.Wrap(backend, d.table, "save", aggregate.ID(), err)
	}

	_, err = d.db.conn.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, payload) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`, d.table),
		aggregate.ID(), string(data),
	)
	return store.Wrap(backend, d.table, "save", aggregate.ID(), err)
}

func (d *Driver[P]) Delete(ctx context.Context, id string) (bool, error) {
	result, err := d.db.conn.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, d.table), id)
	if err != nil {
		return false, store.Wrap(backend, d.table, "delete", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, store.Wrap(backend, d.table, "delete", id, err)
	}
	return n > 0, nil
}
