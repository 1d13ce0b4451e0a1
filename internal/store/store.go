package store

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// Store is the durable log of sessions, rounds (with their multiplier
// trajectories) and bets. It is append-mostly: rounds and multiplier events
// are immutable once written, bets are updated exactly once on resolution.
//
// Writes go through a single owner (the engine, or recovery during startup);
// concurrent readers see per-round consistent snapshots because every round
// settlement is committed in one transaction.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the sqlite database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: db path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "mkdir db dir")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1) // SQLite: single connection is the stable choice
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for read-only consumers (API layer).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
