// Package db provides PostgreSQL storage for cached catalog responses.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS catalog_responses (
    id                   UUID PRIMARY KEY,
    url                  TEXT NOT NULL UNIQUE,
    body                 BYTEA,
    content_hash         TEXT,
    http_status          INTEGER,
    fetch_status         TEXT NOT NULL DEFAULT 'success',
    error_message        TEXT,
    is_permanent_failure BOOLEAN NOT NULL DEFAULT FALSE,
    retry_count          INTEGER NOT NULL DEFAULT 0,
    retry_after          TIMESTAMPTZ,
    fetched_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at           TIMESTAMPTZ,
    last_accessed_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_catalog_responses_expires_at ON catalog_responses (expires_at);
`

// EnsureSchema creates the cache table if it does not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
