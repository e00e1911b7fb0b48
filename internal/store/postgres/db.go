// Package postgres persists aggregates in PostgreSQL tables shaped
// (id TEXT PRIMARY KEY, payload JSONB), one table per collection.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the connection pool shared by every collection.
type DB struct {
	Pool *pgxpool.Pool
}

// Connect parses dsn and opens a pool. The pool connects lazily; call Ready
// to verify connectivity.
func Connect(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Ready runs a trivial query.
func (db *DB) Ready(ctx context.Context) error {
	var one int
	return db.Pool.QueryRow(ctx, "select 1").Scan(&one)
}

func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}
