// Package store persists triggers, factoids, and vocabulary words in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed implementation of the trigger and word stores.
type Store struct {
	db  *sql.DB
	now func() time.Time

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

// Open opens or creates a SQLite database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{
		db:       db,
		now:      func() time.Time { return time.Now().UTC() },
		patterns: make(map[string]*regexp.Regexp),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}

	return nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS triggers (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		pattern        TEXT NOT NULL UNIQUE,
		is_alias       INTEGER NOT NULL DEFAULT 0,
		alias_of       INTEGER REFERENCES triggers(id),
		cooldown_until TEXT,
		created_at     TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS factoids (
		trigger_id INTEGER PRIMARY KEY REFERENCES triggers(id),
		text       TEXT NOT NULL,
		author     TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS words (
		type TEXT NOT NULL,
		word TEXT NOT NULL,
		UNIQUE(type, word)
	);
	CREATE INDEX IF NOT EXISTS idx_words_type ON words(type);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return nil
}

// compile returns the case-insensitive compiled form of one stored pattern.
// Patterns are immutable once stored, so entries are cached forever.
func (s *Store) compile(pattern string) (*regexp.Regexp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if compiled, ok := s.patterns[pattern]; ok {
		return compiled, nil
	}

	compiled, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	s.patterns[pattern] = compiled

	return compiled, nil
}
