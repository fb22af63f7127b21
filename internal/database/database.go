package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	return pool, nil
}

// Schema is applied by EnsureSchema and by `receiptdrop migrate`.
const Schema = `
CREATE TABLE IF NOT EXISTS extractions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	object_key TEXT NOT NULL,
	image_url TEXT NOT NULL,
	status TEXT NOT NULL,
	date DATE,
	currency TEXT,
	vendor_name TEXT,
	items JSONB,
	tax NUMERIC(12,2),
	total NUMERIC(12,2),
	failure_reason TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_extractions_user_created ON extractions(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_extractions_status ON extractions(status);`

// EnsureSchema creates the extractions table if needed.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
