// Copyright 2025 Hyperlane
//
// Postgres-backed KV, for deployments that want the message store durable
// across relayer restarts on real infrastructure rather than in-process
// memory. Grounded on the teacher's lib/pq + go:embed migrations wiring
// style (a single migrations.sql applied idempotently at startup, a plain
// *sql.DB held behind the package's own type rather than a generic ORM).
package msgstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/lib/pq"
)

//go:embed migrations/0001_msgstore_kv.sql
var migrationSQL string

// PostgresKV stores keys/values in a single table, migrated on first use.
type PostgresKV struct {
	db *sql.DB
}

// NewPostgresKV opens a connection pool against dsn and applies the
// package's migration.
func NewPostgresKV(dsn string) (*PostgresKV, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("msgstore: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("msgstore: ping postgres: %w", err)
	}
	if _, err := db.Exec(migrationSQL); err != nil {
		return nil, fmt.Errorf("msgstore: apply migration: %w", err)
	}
	return &PostgresKV{db: db}, nil
}

func (p *PostgresKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := p.db.QueryRowContext(ctx, `SELECT value FROM msgstore_kv WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("msgstore: get %s: %w", key, err)
	}
	return value, true, nil
}

func (p *PostgresKV) Put(ctx context.Context, key string, value []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO msgstore_kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("msgstore: put %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (p *PostgresKV) Close() error {
	return p.db.Close()
}
