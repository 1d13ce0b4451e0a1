package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/betbot/crasher/internal/domain"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// InsertBet records a newly accepted bet as pending.
func (s *Store) InsertBet(ctx context.Context, b *domain.Bet) error {
	outcome := b.Outcome
	if outcome == "" {
		outcome = domain.BetPending
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO bets (id, session_id, round_id, strategy, stake, target_cashout, outcome, payout, placed_at)
VALUES (?,?,?,?,?,?,?,?,?)
`, b.ID, b.SessionID, b.RoundID, b.Strategy, b.Stake.String(), b.TargetCashout,
		string(outcome), b.Payout.String(), fmtTime(b.PlacedAt))
	return errors.Wrap(err, "insert bet")
}

// ResolveBet updates outcome, payout and resolution time of one bet.
func (s *Store) ResolveBet(ctx context.Context, betID string, outcome domain.BetOutcome, payout decimal.Decimal, resolvedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE bets SET outcome=?, payout=?, resolved_at=? WHERE id=?
`, string(outcome), payout.String(), fmtTime(resolvedAt), betID)
	if err != nil {
		return errors.Wrap(err, "resolve bet")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Errorf("resolve bet: no such bet %s", betID)
	}
	return nil
}

// PendingBets returns unresolved bets of a session, oldest first. Recovery
// settles these from the persisted trajectory or marks them unknown.
func (s *Store) PendingBets(ctx context.Context, sessionID string) ([]domain.Bet, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, round_id, strategy, stake, target_cashout, outcome, payout, placed_at, resolved_at
FROM bets WHERE session_id=? AND outcome='pending' ORDER BY placed_at ASC
`, sessionID)
	if err != nil {
		return nil, err
	}
	return collectBets(rows)
}

// BetsBySession returns every bet of a session, oldest first.
func (s *Store) BetsBySession(ctx context.Context, sessionID string) ([]domain.Bet, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, round_id, strategy, stake, target_cashout, outcome, payout, placed_at, resolved_at
FROM bets WHERE session_id=? ORDER BY placed_at ASC
`, sessionID)
	if err != nil {
		return nil, err
	}
	return collectBets(rows)
}

// TrailingLosses counts the consecutive resolved losses of one strategy at
// the tail of a session. An unknown outcome breaks the count (it is neither
// a win nor a loss), matching how streak state is rebuilt on recovery.
func (s *Store) TrailingLosses(ctx context.Context, sessionID, strategy string) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT outcome FROM bets
WHERE session_id=? AND strategy=? AND outcome != 'pending'
ORDER BY placed_at DESC
`, sessionID, strategy)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var outcome string
		if err := rows.Scan(&outcome); err != nil {
			return 0, err
		}
		if outcome != string(domain.BetLost) {
			break
		}
		count++
	}
	return count, rows.Err()
}

func collectBets(rows *sql.Rows) ([]domain.Bet, error) {
	defer rows.Close()
	var out []domain.Bet
	for rows.Next() {
		var (
			b            domain.Bet
			stake        string
			target       sql.NullFloat64
			outcome      string
			payout       string
			placed       string
			resolved     sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.SessionID, &b.RoundID, &b.Strategy,
			&stake, &target, &outcome, &payout, &placed, &resolved); err != nil {
			return nil, err
		}
		b.Stake, _ = decimal.NewFromString(stake)
		if target.Valid {
			b.TargetCashout = target.Float64
		}
		b.Outcome = domain.BetOutcome(outcome)
		b.Payout, _ = decimal.NewFromString(payout)
		b.PlacedAt = parseTime(placed)
		if resolved.Valid {
			t := parseTime(resolved.String)
			b.ResolvedAt = &t
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
