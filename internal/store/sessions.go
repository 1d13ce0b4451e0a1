package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/betbot/crasher/internal/domain"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const timeLayout = time.RFC3339Nano

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess domain.Session) error {
	var ended *string
	if sess.EndedAt != nil {
		v := fmtTime(*sess.EndedAt)
		ended = &v
	}
	var endBal *string
	if sess.EndBalance != nil {
		v := sess.EndBalance.String()
		endBal = &v
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (id, started_at, ended_at, start_balance, end_balance)
VALUES (?,?,?,?,?)
`, sess.ID, fmtTime(sess.StartedAt), ended, sess.StartBalance.String(), endBal)
	return errors.Wrap(err, "insert session")
}

// EndSession marks a session closed with its final balance.
func (s *Store) EndSession(ctx context.Context, sessionID string, endedAt time.Time, endBalance decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE sessions SET ended_at=?, end_balance=? WHERE id=?
`, fmtTime(endedAt), endBalance.String(), sessionID)
	return errors.Wrap(err, "end session")
}

// LastSession returns the most recently started session, or nil when the
// database is empty.
func (s *Store) LastSession(ctx context.Context) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT s.id, s.started_at, s.ended_at, s.start_balance, s.end_balance,
       (SELECT COUNT(*) FROM rounds r WHERE r.session_id = s.id)
FROM sessions s ORDER BY s.started_at DESC LIMIT 1
`)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT s.id, s.started_at, s.ended_at, s.start_balance, s.end_balance,
       (SELECT COUNT(*) FROM rounds r WHERE r.session_id = s.id)
FROM sessions s ORDER BY s.started_at DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		sess          domain.Session
		started       string
		ended, endBal sql.NullString
		startBal      sql.NullString
	)
	if err := row.Scan(&sess.ID, &started, &ended, &startBal, &endBal, &sess.TotalRounds); err != nil {
		return nil, err
	}
	sess.StartedAt = parseTime(started)
	if ended.Valid {
		t := parseTime(ended.String)
		sess.EndedAt = &t
	}
	if startBal.Valid {
		sess.StartBalance, _ = decimal.NewFromString(startBal.String)
	}
	if endBal.Valid {
		d, err := decimal.NewFromString(endBal.String)
		if err == nil {
			sess.EndBalance = &d
		}
	}
	return &sess, nil
}

// SessionSummary aggregates profit and win/loss counts for one session.
func (s *Store) SessionSummary(ctx context.Context, sessionID string) (*domain.SessionSummary, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT s.id, s.started_at, s.ended_at, s.start_balance, s.end_balance,
       (SELECT COUNT(*) FROM rounds r WHERE r.session_id = s.id)
FROM sessions s WHERE s.id=?
`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	sum := &domain.SessionSummary{Session: *sess}
	bets, err := s.BetsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i := range bets {
		b := &bets[i]
		sum.TotalBets++
		switch b.Outcome {
		case domain.BetWon:
			sum.Wins++
		case domain.BetLost:
			sum.Losses++
		}
		sum.TotalProfit = sum.TotalProfit.Add(b.Profit())
	}
	return sum, nil
}
