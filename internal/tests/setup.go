// Package tests holds integration tests that run the pool engine and the HTTP
// API against a real PostgreSQL database. They skip when DATABASE_URL is unset.
package tests

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/slotkeeper/server/internal/db"
)

// OpenTestDB connects to DATABASE_URL and applies migrations, skipping the test
// when no database is configured.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	ctx := context.Background()
	database, err := db.OpenPostgres(ctx, databaseURL, db.DefaultPoolOptions())
	if err != nil {
		t.Fatalf("database open must succeed; check DATABASE_URL and that test DB exists: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := db.Migrate(database, db.DialectPostgres); err != nil {
		t.Fatalf("migrations must run successfully: %v", err)
	}
	if err := TruncatePoolTables(ctx, database); err != nil {
		t.Fatal(err)
	}
	return database
}

// TruncatePoolTables truncates pool-related tables for a clean test state.
func TruncatePoolTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, "TRUNCATE TABLE reports, assignments, profiles, accounts CASCADE")
	if err != nil {
		return fmt.Errorf("truncate pool tables: %w", err)
	}
	return nil
}
