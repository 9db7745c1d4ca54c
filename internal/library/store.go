// Package library persists the clips attached to journal entries in a
// local sqlite database.
package library

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const busyTimeoutMS = 5000

// Store is the clip library, backed by one sqlite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the library at path and brings its
// schema up to date.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create library directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMS),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to configure library: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const schemaClips = `
CREATE TABLE IF NOT EXISTS clips (
	entry_id   TEXT PRIMARY KEY,
	track_uri  TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	artist     TEXT NOT NULL DEFAULT '',
	start_ms   INTEGER NOT NULL CHECK (start_ms >= 0),
	end_ms     INTEGER NOT NULL CHECK (end_ms > start_ms),
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`

const schemaClipsIndexes = `
CREATE INDEX IF NOT EXISTS idx_clips_updated_at ON clips(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_clips_track_uri ON clips(track_uri);`

type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version:    1,
		statements: []string{schemaClips, schemaClipsIndexes},
	},
}

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		for _, stmt := range m.statements {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d failed: %w", m.version, err)
			}
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version=%d", m.version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
