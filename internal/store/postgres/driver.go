package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"

	"github.com/zjrosen/nametags/internal/domain"
	"github.com/zjrosen/nametags/internal/store"
)

const backend = "postgres"

var tablePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Driver is a store.Driver over one PostgreSQL table. Payloads must encode
// to JSON.
type Driver[P any] struct {
	db    *DB
	table string
	codec store.JSONCodec[P]
}

var _ store.Driver[domain.Properties] = (*Driver[domain.Properties])(nil)

// New returns a driver for table.
func New[P any](db *DB, table string) (*Driver[P], error) {
	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Driver[P]{db: db, table: table}, nil
}

func (d *Driver[P]) Start(ctx context.Context) error {
	if err := d.db.Ready(ctx); err != nil {
		return store.Wrap(backend, d.table, "start", "", err)
	}
	_, err := d.db.Pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			payload JSONB NOT NULL
		)`, d.table))
	return store.Wrap(backend, d.table, "start", "", err)
}

func (d *Driver[P]) Find(ctx context.Context, id string) (*domain.Aggregate[P], error) {
	var payload []byte
	err := d.db.Pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT payload FROM %s WHERE id = $1`, d.table), id,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Wrap(backend, d.table, "find", id, err)
	}

	decoded, err := d.codec.Decode(payload)
	if err != nil {
		return nil, store.Wrap(backend, d.table, "find", id, err)
	}
	return domain.NewAggregate(id, decoded), nil
}

func (d *Driver[P]) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := d.db.Pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, d.table), id,
	).Scan(&exists)
	if err != nil {
		return false, store.Wrap(backend, d.table, "exists", id, err)
	}
	return exists, nil
}

func (d *Driver[P]) Save(ctx context.Context, aggregate *domain.Aggregate[P]) error {
	data, err := d.codec.Encode(aggregate.Payload())
	if err != nil {
		return store.Wrap(backend, d.table, "save", aggregate.ID(), err)
	}
	_, err = d.db.Pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, payload) VALUES ($1, $2::jsonb)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload`, d.table),
		aggregate.ID(), string(data),
	)
	return store.Wrap(backend, d.table, "save", aggregate.ID(), err)
}

func (d *Driver[P]) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := d.db.Pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, d.table), id)
	if err != nil {
		return false, store.Wrap(backend, d.table, "delete", id, err)
	}
	return tag.RowsAffected() > 0, nil
}
