// Package db manages the SQLite run store.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Init initializes the SQLite database at baseDir/promptpack.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.promptpack.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	dbPath := filepath.Join(baseDir, "promptpack.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS runs (
		  id            TEXT PRIMARY KEY,
		  root          TEXT NOT NULL,
		  strategy      TEXT NOT NULL,
		  token_source  TEXT NOT NULL,
		  input_tokens  INTEGER NOT NULL DEFAULT 0,
		  output_tokens INTEGER NOT NULL DEFAULT 0,
		  record_count  INTEGER NOT NULL DEFAULT 0,
		  started_at    INTEGER NOT NULL,
		  finished_at   INTEGER
		);

		CREATE TABLE IF NOT EXISTS usage_records (
		  id            INTEGER PRIMARY KEY AUTOINCREMENT,
		  run_id        TEXT NOT NULL,
		  operation     TEXT NOT NULL,
		  input_tokens  INTEGER NOT NULL,
		  output_tokens INTEGER NOT NULL,
		  status        TEXT NOT NULL,
		  latency_ms    INTEGER NOT NULL DEFAULT 0,
		  created_at    INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_usage_records_run
		ON usage_records(run_id);

		CREATE TABLE IF NOT EXISTS call_dumps (
		  id         INTEGER PRIMARY KEY AUTOINCREMENT,
		  run_id     TEXT NOT NULL,
		  kind       TEXT NOT NULL,
		  payload    TEXT NOT NULL,
		  created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_call_dumps_run
		ON call_dumps(run_id);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to apply schema v1: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode confirms WAL journaling is active.
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to check journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
