package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/betbot/crasher/internal/domain"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SaveSettledRound writes a settled round, its multiplier trajectory and the
// resolved bets of that round in a single transaction, so readers never
// observe a half-written round/bet pair.
func (s *Store) SaveSettledRound(ctx context.Context, round *domain.Round, bettorCount int, resolved []*domain.Bet) error {
	if !round.Settled() {
		return errors.Errorf("round %s is not settled", round.ID)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin settle tx")
	}
	defer func() { _ = tx.Rollback() }()

	flagged := 0
	if round.Flagged {
		flagged = 1
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO rounds (id, session_id, crash_multiplier, started_at, ended_at, flagged, bettor_count)
VALUES (?,?,?,?,?,?,?)
`, round.ID, round.SessionID, round.CrashMultiplier, fmtTime(round.StartedAt), fmtTime(*round.EndedAt), flagged, bettorCount); err != nil {
		return errors.Wrap(err, "insert round")
	}

	for _, ev := range round.Events {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO multiplier_events (round_id, seq, value, observed_at) VALUES (?,?,?,?)
`, round.ID, ev.Sequence, ev.Value, fmtTime(ev.ObservedAt)); err != nil {
			return errors.Wrapf(err, "insert multiplier event %d", ev.Sequence)
		}
	}

	for _, b := range resolved {
		var resolvedAt *string
		if b.ResolvedAt != nil {
			v := fmtTime(*b.ResolvedAt)
			resolvedAt = &v
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE bets SET outcome=?, payout=?, resolved_at=? WHERE id=?
`, string(b.Outcome), b.Payout.String(), resolvedAt, b.ID); err != nil {
			return errors.Wrapf(err, "resolve bet %s", b.ID)
		}
	}
	return errors.Wrap(tx.Commit(), "commit settle tx")
}

// FlagRound marks a round as excluded from statistics.
func (s *Store) FlagRound(ctx context.Context, roundID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE rounds SET flagged=1 WHERE id=?`, roundID)
	return errors.Wrap(err, "flag round")
}

// RoundWithEvents loads one round including its multiplier trajectory.
// Returns nil when the round does not exist.
func (s *Store) RoundWithEvents(ctx context.Context, roundID string) (*domain.Round, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, session_id, crash_multiplier, started_at, ended_at, flagged
FROM rounds WHERE id=?
`, roundID)
	round, err := scanRound(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT seq, value, observed_at FROM multiplier_events WHERE round_id=? ORDER BY seq ASC
`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ev       domain.MultiplierEvent
			observed string
		)
		if err := rows.Scan(&ev.Sequence, &ev.Value, &observed); err != nil {
			return nil, err
		}
		ev.RoundID = roundID
		ev.ObservedAt = parseTime(observed)
		round.Events = append(round.Events, ev)
	}
	return round, rows.Err()
}

func scanRound(row rowScanner) (*domain.Round, error) {
	var (
		round   domain.Round
		started string
		ended   sql.NullString
		flagged int
	)
	if err := row.Scan(&round.ID, &round.SessionID, &round.CrashMultiplier, &started, &ended, &flagged); err != nil {
		return nil, err
	}
	round.StartedAt = parseTime(started)
	if ended.Valid {
		t := parseTime(ended.String)
		round.EndedAt = &t
	}
	round.Flagged = flagged != 0
	return &round, nil
}

// SessionMultipliers returns the last n crash multipliers of a session in
// chronological order. n <= 0 returns all of them.
func (s *Store) SessionMultipliers(ctx context.Context, sessionID string, n int) ([]float64, error) {
	query := `SELECT crash_multiplier FROM rounds WHERE session_id=? ORDER BY started_at DESC, id DESC`
	args := []any{sessionID}
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rev []float64
	for rows.Next() {
		var m float64
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		rev = append(rev, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse into chronological order
	out := make([]float64, len(rev))
	for i, m := range rev {
		out[len(rev)-1-i] = m
	}
	return out, nil
}

// ReplayMultipliers returns the session's crash multipliers excluding flagged
// rounds, chronological. Used to rebuild detector state on recovery.
func (s *Store) ReplayMultipliers(ctx context.Context, sessionID string) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT crash_multiplier FROM rounds
WHERE session_id=? AND flagged=0
ORDER BY started_at ASC, id ASC
`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var m float64
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListRounds returns the most recent rounds of a session, newest first.
func (s *Store) ListRounds(ctx context.Context, sessionID string, limit int) ([]domain.Round, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, crash_multiplier, started_at, ended_at, flagged
FROM rounds WHERE session_id=?
ORDER BY started_at DESC, id DESC LIMIT ?
`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// BackfillRounds imports crash multipliers that were observed by the driver
// while the bot was down. Timestamps are spread linearly between start and
// end; rounds are marked backfilled and carry no trajectory.
func (s *Store) BackfillRounds(ctx context.Context, sessionID string, multipliers []float64, start, end time.Time) error {
	if len(multipliers) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin backfill tx")
	}
	defer func() { _ = tx.Rollback() }()

	step := end.Sub(start) / time.Duration(len(multipliers))
	for i, m := range multipliers {
		ts := start.Add(step * time.Duration(i+1))
		if i == len(multipliers)-1 {
			ts = end
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO rounds (id, session_id, crash_multiplier, started_at, ended_at, flagged, backfilled)
VALUES (?,?,?,?,?,0,1)
`, uuid.NewString(), sessionID, m, fmtTime(ts), fmtTime(ts)); err != nil {
			return errors.Wrap(err, "insert backfilled round")
		}
	}
	return errors.Wrap(tx.Commit(), "commit backfill tx")
}
