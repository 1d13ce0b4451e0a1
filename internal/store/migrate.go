package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  started_at TEXT NOT NULL,
  ended_at TEXT,
  start_balance TEXT,
  end_balance TEXT
);`,
		`
CREATE TABLE IF NOT EXISTS rounds (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
  crash_multiplier REAL NOT NULL,
  started_at TEXT NOT NULL,
  ended_at TEXT,
  flagged INTEGER NOT NULL DEFAULT 0,
  bettor_count INTEGER,
  backfilled INTEGER NOT NULL DEFAULT 0
);`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_session_started ON rounds(session_id, started_at);`,
		`
CREATE TABLE IF NOT EXISTS multiplier_events (
  round_id TEXT NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
  seq INTEGER NOT NULL,
  value REAL NOT NULL,
  observed_at TEXT NOT NULL,
  PRIMARY KEY (round_id, seq)
);`,
		`
CREATE TABLE IF NOT EXISTS bets (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
  round_id TEXT NOT NULL,
  strategy TEXT NOT NULL,
  stake TEXT NOT NULL,
  target_cashout REAL,
  outcome TEXT NOT NULL CHECK(outcome IN ('pending','won','lost','unknown')),
  payout TEXT NOT NULL DEFAULT '0',
  placed_at TEXT NOT NULL,
  resolved_at TEXT
);`,
		`CREATE INDEX IF NOT EXISTS idx_bets_session ON bets(session_id, placed_at);`,
		`CREATE INDEX IF NOT EXISTS idx_bets_pending ON bets(outcome) WHERE outcome='pending';`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "migrate: %.40s", stmt)
		}
	}
	return nil
}
