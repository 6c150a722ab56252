// Package catalog implements the C5 Asset Index: a persistent store over
// modernc.org/sqlite holding assets, folders, edit states, and cache
// metadata, with compound indexes serving every query spec.md §4.5
// requires and an additive, sequential schema migration chain.
package catalog

import (
	"database/sql"
	"fmt"

	"photonic/internal/apperr"

	_ "modernc.org/sqlite"
)

// schemaVersion is the current EditState/table-shape version. Bump this
// and append a migrationNNN function whenever the schema changes.
const schemaVersion = 4

// Store wraps the sqlite-backed asset index (LiteroomCatalog, spec.md §6).
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the catalog database at path, running schema
// creation and any pending migrations before returning.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A short busy timeout turns a concurrent-writer lock into a prompt,
	// recoverable error instead of blocking the caller forever (spec.md
	// §4.5 "must surface a recoverable error, not deadlock").
	if _, err := db.Exec(`PRAGMA busy_timeout = 2000;`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS folders (
			folder_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			handle_key TEXT NOT NULL,
			last_scan_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS assets (
			asset_id TEXT PRIMARY KEY,
			folder_id TEXT NOT NULL REFERENCES folders(folder_id),
			path TEXT NOT NULL,
			filename TEXT NOT NULL,
			extension TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			modified_at TIMESTAMP NOT NULL,
			capture_date TIMESTAMP,
			width_px INTEGER,
			height_px INTEGER,
			flag TEXT NOT NULL DEFAULT 'unflagged',
			UNIQUE(folder_id, path)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_assets_folder_capture ON assets(folder_id, capture_date);`,
		`CREATE INDEX IF NOT EXISTS idx_assets_flag_capture ON assets(flag, capture_date);`,
		`CREATE INDEX IF NOT EXISTS idx_assets_folder_filename ON assets(folder_id, filename);`,
		`CREATE TABLE IF NOT EXISTS edits (
			asset_id TEXT PRIMARY KEY REFERENCES assets(asset_id),
			schema_version INTEGER NOT NULL,
			document_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS cache_metadata (
			asset_id TEXT PRIMARY KEY REFERENCES assets(asset_id),
			thumbnail_ready INTEGER NOT NULL DEFAULT 0,
			preview1x_ready INTEGER NOT NULL DEFAULT 0,
			preview2x_ready INTEGER NOT NULL DEFAULT 0,
			thumbnail_key TEXT,
			preview1x_key TEXT,
			preview2x_key TEXT
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	var count int
	if err := s.DB.QueryRow(`SELECT COUNT(*) FROM schema_migrations;`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		// Fresh database: seed at 0 so migrate() runs every migration in
		// order instead of assuming we're already current.
		if _, err := s.DB.Exec(`INSERT INTO schema_migrations (version) VALUES (0);`); err != nil {
			return err
		}
	}
	return nil
}

// migration is one additive, sequential schema upgrade step (spec.md
// §4.5 "migrations are additive and sequential").
type migration func(tx *sql.Tx) error

var migrations = []migration{
	migration001AddCaptureIndexDefaults,
	migration002NoOp,
	migration003NoOp,
	migration004NoOp,
}

// migrate reads the current persisted version and runs every migration
// above it, one transaction per version, matching the teacher's
// storage.go preference for direct SQL over an ORM migration tool.
func (s *Store) migrate() error {
	var current int
	if err := s.DB.QueryRow(`SELECT version FROM schema_migrations LIMIT 1;`).Scan(&current); err != nil {
		return err
	}
	if current > schemaVersion {
		return fmt.Errorf("%w: catalog is at version %d, this build supports up to %d",
			apperr.ErrSchemaUnsupported, current, schemaVersion)
	}

	for v := current; v < len(migrations); v++ {
		tx, err := s.DB.Begin()
		if err != nil {
			return fmt.Errorf("%w: %v", apperr.ErrSchemaLocked, err)
		}
		if err := migrations[v](tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec(`UPDATE schema_migrations SET version = ?;`, v+1); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// migration001AddCaptureIndexDefaults is a placeholder first migration:
// the base schema above already ships with the §4.5 compound indexes, so
// this step only backfills the flag default for any pre-existing rows
// (defensive against a future schema that adds the column nullable).
func migration001AddCaptureIndexDefaults(tx *sql.Tx) error {
	_, err := tx.Exec(`UPDATE assets SET flag = 'unflagged' WHERE flag IS NULL;`)
	return err
}

func migration002NoOp(tx *sql.Tx) error { return nil }
func migration003NoOp(tx *sql.Tx) error { return nil }
func migration004NoOp(tx *sql.Tx) error { return nil }
