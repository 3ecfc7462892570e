package database

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/codeplaymaker/marketplaymaker-sub000/internal/config"
)

// SetupTestDB creates a test database connection and ensures the engine schema.
// Tests calling it are skipped unless TEST_DATABASE_HOST is set.
func SetupTestDB(t *testing.T) *DB {
	host := os.Getenv("TEST_DATABASE_HOST")
	if host == "" {
		t.Skip("TEST_DATABASE_HOST not set, skipping database test")
	}

	port := 5432
	if p := os.Getenv("TEST_DATABASE_PORT"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			port = parsed
		}
	}

	cfg := &config.DatabaseConfig{
		Host:               host,
		Port:               port,
		Name:               envOrDefault("TEST_DATABASE_NAME", "market_engine_test"),
		User:               envOrDefault("TEST_DATABASE_USER", "postgres"),
		Password:           envOrDefault("TEST_DATABASE_PASSWORD", "postgres"),
		SSLMode:            "disable",
		MaxConnections:     5,
		MaxIdleConnections: 2,
	}

	// Create context for connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := NewDB(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create test database connection: %v", err)
	}

	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		t.Fatalf("failed to ensure test schema: %v", err)
	}

	// Verify connection
	verifyCtx, verifyCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer verifyCancel()

	if err := db.Ping(verifyCtx); err != nil {
		t.Fatalf("failed to ping test database: %v", err)
	}

	return db
}

// TeardownTestDB clears engine tables and closes the connection cleanly
func TeardownTestDB(t *testing.T, db *DB) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, table := range []string{"picks", "adjustments", "builds"} {
		if _, err := db.Exec(ctx, "DELETE FROM "+table); err != nil {
			t.Logf("warning: failed to clear table %s: %v", table, err)
		}
	}

	db.Close()
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
