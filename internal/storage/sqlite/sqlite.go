package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/goodtune/accesstime/internal/storage"
	_ "modernc.org/sqlite"
)

// ErrReadOnly is returned by writes attempted inside View.
var ErrReadOnly = errors.New("sqlite: write in read-only transaction")

// Store implements storage.Store on a single SQLite connection. Each
// Update runs in one SQL transaction.
type Store struct {
	db *sql.DB
}

// Open creates a new database connection and runs migrations.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := storage.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite limitation
	db.SetMaxIdleConns(1)

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn in a read-write transaction.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, false, fn)
}

// View runs fn in a transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *Store) run(ctx context.Context, readOnly bool, fn func(tx storage.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&sqliteTx{ctx: ctx, tx: tx, readOnly: readOnly}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if readOnly {
		return tx.Rollback()
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// runMigrations applies all database migrations
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for i, migration := range migrations {
		version := i + 1
		if version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(migration); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}

	return nil
}

// migrations are applied in slice order; version is index+1.
var migrations = []string{
	migration001Settings,
	migration002Packages,
	migration003Sessions,
	migration004Orders,
}

// Unsigned 64-bit amounts are stored bit-cast into SQLite's signed INTEGER.

const migration001Settings = `
CREATE TABLE IF NOT EXISTS settings (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	admin TEXT NOT NULL,
	token TEXT NOT NULL
);
`

const migration002Packages = `
CREATE TABLE IF NOT EXISTS packages (
	id INTEGER PRIMARY KEY,
	price INTEGER NOT NULL,
	duration_secs INTEGER NOT NULL
);
`

const migration003Sessions = `
CREATE TABLE IF NOT EXISTS sessions (
	owner TEXT PRIMARY KEY,
	remaining_secs INTEGER NOT NULL,
	started_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sequences (
	owner TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
`

const migration004Orders = `
CREATE TABLE IF NOT EXISTS orders (
	owner TEXT NOT NULL,
	sequence_key TEXT NOT NULL, -- zero-padded sequence id
	sequence_id INTEGER NOT NULL,
	package_id INTEGER NOT NULL,
	credited INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (owner, sequence_key)
);
`
