// Package sqlite is a single-node storage backend on the pure-Go SQLite driver.
// SQLite allows one writer at a time, so the pool holds a single connection and
// claims are serialized by the database itself.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	msqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/slotkeeper/server/internal/db"
	"github.com/slotkeeper/server/internal/repo"
)

// Store implements repo.Store on an SQLite file
type Store struct {
	db          *sqlx.DB
	accounts    *accountRepo
	assignments *assignmentRepo
	reports     *reportRepo
}

var _ repo.Store = (*Store)(nil)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Open creates the database file if needed, applies migrations and returns the store.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sqlite pragma journal_mode: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA synchronous = NORMAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sqlite pragma synchronous: %w", err)
	}
	if err := db.Migrate(conn.DB, db.DialectSQLite); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &Store{
		db:          conn,
		accounts:    &accountRepo{db: conn},
		assignments: &assignmentRepo{db: conn},
		reports:     &reportRepo{db: conn},
	}, nil
}

func (s *Store) Accounts() repo.AccountRepo       { return s.accounts }
func (s *Store) Assignments() repo.AssignmentRepo { return s.assignments }
func (s *Store) Reports() repo.ReportRepo         { return s.reports }

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY failure whose
// message names the given column (any column when empty).
func isUniqueViolation(err error, column string) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY:
	default:
		return false
	}
	return column == "" || strings.Contains(se.Error(), column)
}
