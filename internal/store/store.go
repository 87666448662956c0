// Package store is the persistence layer for the dashboard: users, roles,
// form values, audit, LDX processing state, sensors, and singleton
// configuration rows. It wraps a single SQLite database reached through
// the pure-Go modernc.org/sqlite driver and versioned with goose
// migrations embedded in the binary.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Store wraps a *sql.DB connection to the SQLite database.
type Store struct {
	conn *sql.DB
}

// Open creates a new Store and runs all pending migrations.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode tolerates one writer and many readers, but the pure-Go
	// driver has no connection-pool-level write serialization of its
	// own, so a single connection keeps write ordering simple.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	migrationsFS, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations sub-fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, migrationsFS)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create migration provider: %w", err)
	}

	if _, err := provider.Up(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.seedSingletonRows(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("seed singleton rows: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Conn returns the underlying *sql.DB, for callers (export/backup) that
// need raw access.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// seedSingletonRows ensures the watch_config, serial_config, and
// source_preference tables each have their id=1 row so later GET/PUT
// operations can always UPDATE rather than branching on existence.
func (s *Store) seedSingletonRows() error {
	stmts := []string{
		`INSERT INTO watch_config (id, path) VALUES (1, NULL) ON CONFLICT(id) DO NOTHING`,
		`INSERT INTO serial_config (id) VALUES (1) ON CONFLICT(id) DO NOTHING`,
		`INSERT INTO source_preference (id, preference) VALUES (1, 'auto') ON CONFLICT(id) DO NOTHING`,
	}
	for _, stmt := range stmts {
		if _, err := s.conn.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error (including a panic, which is re-thrown after rollback).
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
