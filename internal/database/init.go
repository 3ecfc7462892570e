package database

import (
	"context"
	"fmt"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
)

// schemaStatements holds the engine tables, created idempotently at startup
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS picks (
		id UUID PRIMARY KEY,
		acca_id TEXT NOT NULL,
		build_id TEXT NOT NULL,
		legs JSONB NOT NULL,
		combined_odds DOUBLE PRECISION NOT NULL,
		adjusted_probability DOUBLE PRECISION NOT NULL,
		ev_percent DOUBLE PRECISION NOT NULL,
		stake DOUBLE PRECISION NOT NULL,
		grade TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		result TEXT,
		pnl DOUBLE PRECISION,
		proposed_at TIMESTAMPTZ NOT NULL,
		resolved_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_picks_status ON picks(status)`,
	`CREATE INDEX IF NOT EXISTS idx_picks_resolved_at ON picks(resolved_at)`,
	`CREATE TABLE IF NOT EXISTS adjustments (
		category TEXT PRIMARY KEY,
		multiplier DOUBLE PRECISION NOT NULL,
		implied_win_rate DOUBLE PRECISION NOT NULL,
		realized_win_rate DOUBLE PRECISION NOT NULL,
		sample_size INTEGER NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS builds (
		id UUID PRIMARY KEY,
		version BIGINT NOT NULL DEFAULT 0,
		triggered_by TEXT NOT NULL,
		status TEXT NOT NULL,
		markets_scanned INTEGER NOT NULL DEFAULT 0,
		markets_excluded INTEGER NOT NULL DEFAULT 0,
		edges_found INTEGER NOT NULL DEFAULT 0,
		accas_built INTEGER NOT NULL DEFAULT 0,
		degraded_sources JSONB,
		error TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_builds_started_at ON builds(started_at)`,
}

// Initialize creates a database connection pool and ensures the engine schema exists
func Initialize(ctx context.Context, cfg *config.Config) (*DB, error) {
	// Create connection pool
	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	// Create engine tables when missing
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// EnsureSchema creates the engine tables when they do not exist yet
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
