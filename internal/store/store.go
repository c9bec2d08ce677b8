package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Store holds the SQLite connection and provides access to repositories.
type Store struct {
	db  *sqlx.DB
	seq *sequenceCounter
}

// Open connects to the SQLite database at dsn, applies pragmas and creates
// the schema.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	seq, err := newSequenceCounter(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, seq: seq}, nil
}

// DB returns the underlying handle for raw queries.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EventRepo returns an EventRepo backed by this store.
func (s *Store) EventRepo() EventRepo {
	return &eventRepo{db: s.db, seq: s.seq}
}

func applyPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS import_events (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		sequence  INTEGER NOT NULL,
		ts_ms     INTEGER NOT NULL,
		batch_id  TEXT    NOT NULL,
		user_id   TEXT    NOT NULL,
		source    TEXT    NOT NULL,
		strategy  TEXT    NOT NULL DEFAULT '',
		found     INTEGER NOT NULL,
		added     INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_import_events_user ON import_events (user_id, sequence)`,
	`CREATE TABLE IF NOT EXISTS refresh_events (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		sequence           INTEGER NOT NULL,
		ts_ms              INTEGER NOT NULL,
		forced             INTEGER NOT NULL,
		used_fallback      INTEGER NOT NULL,
		remote             INTEGER NOT NULL,
		downloaded         INTEGER NOT NULL,
		skipped            INTEGER NOT NULL,
		failed             INTEGER NOT NULL,
		missing            INTEGER NOT NULL,
		extra              INTEGER NOT NULL,
		invalid            INTEGER NOT NULL,
		total_achievements INTEGER NOT NULL,
		duration_ms        INTEGER NOT NULL,
		error_message      TEXT    NOT NULL DEFAULT ''
	)`,
}

func migrate(db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// DefaultDBPath resolves the database file path in priority order:
// 1. MCATAC_DB environment variable
// 2. $XDG_DATA_HOME/mcat-ac/events.db
// 3. ~/.local/share/mcat-ac/events.db
func DefaultDBPath() (string, error) {
	if p := os.Getenv("MCATAC_DB"); p != "" {
		return p, EnsureDir(p)
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	p := filepath.Join(dataHome, "mcat-ac", "events.db")
	return p, EnsureDir(p)
}

// EnsureDir creates the parent directory of path if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
