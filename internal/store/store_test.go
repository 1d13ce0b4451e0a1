package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/betbot/crasher/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "crasher.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testSession(t *testing.T, s *Store, start time.Time) domain.Session {
	t.Helper()
	sess := domain.Session{
		ID:           "sess-" + start.Format("150405.000"),
		StartedAt:    start,
		StartBalance: decimal.NewFromInt(100),
	}
	require.NoError(t, s.CreateSession(context.Background(), sess))
	return sess
}

func settledRound(sess domain.Session, id string, crash float64, started time.Time) *domain.Round {
	ended := started.Add(10 * time.Second)
	r := &domain.Round{
		ID:              id,
		SessionID:       sess.ID,
		CrashMultiplier: crash,
		StartedAt:       started,
		EndedAt:         &ended,
	}
	r.Events = []domain.MultiplierEvent{
		{RoundID: id, Sequence: 1, Value: 1.0, ObservedAt: started},
		{RoundID: id, Sequence: 2, Value: crash, ObservedAt: ended},
	}
	return r
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	last, err := s.LastSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, last, "empty db should have no last session")

	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	sess := testSession(t, s, t0)
	testSession(t, s, t0.Add(time.Hour)) // newer session

	last, err = s.LastSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.NotEqual(t, sess.ID, last.ID)
	assert.True(t, last.Active())

	endBal := decimal.NewFromInt(150)
	require.NoError(t, s.EndSession(ctx, last.ID, t0.Add(2*time.Hour), endBal))

	last, err = s.LastSession(ctx)
	require.NoError(t, err)
	assert.False(t, last.Active())
	require.NotNil(t, last.EndBalance)
	assert.True(t, last.EndBalance.Equal(endBal))

	all, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSaveSettledRoundTransaction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	sess := testSession(t, s, t0)

	round := settledRound(sess, "r1", 3.2, t0)
	bet := &domain.Bet{
		ID:            "b1",
		SessionID:     sess.ID,
		RoundID:       round.ID,
		Strategy:      "steady",
		Stake:         decimal.NewFromInt(10),
		TargetCashout: 2.5,
		Outcome:       domain.BetPending,
		PlacedAt:      t0,
	}
	require.NoError(t, s.InsertBet(ctx, bet))

	now := t0.Add(10 * time.Second)
	bet.SettleAgainst(round, now)
	require.Equal(t, domain.BetWon, bet.Outcome)

	require.NoError(t, s.SaveSettledRound(ctx, round, 42, []*domain.Bet{bet}))

	got, err := s.RoundWithEvents(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3.2, got.CrashMultiplier)
	require.Len(t, got.Events, 2)
	assert.Equal(t, int64(2), got.Events[1].Sequence)

	bets, err := s.BetsBySession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.Equal(t, domain.BetWon, bets[0].Outcome)
	assert.True(t, bets[0].Payout.Equal(decimal.NewFromInt(25)))
	require.NotNil(t, bets[0].ResolvedAt)

	// a round that is still open must be rejected
	open := &domain.Round{ID: "r2", SessionID: sess.ID, StartedAt: t0}
	assert.Error(t, s.SaveSettledRound(ctx, open, 0, nil))
}

func TestMultiplierQueries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	sess := testSession(t, s, t0)

	crashes := []float64{1.1, 2.4, 1.7, 5.0, 1.2}
	for i, c := range crashes {
		r := settledRound(sess, "r"+string(rune('a'+i)), c, t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.SaveSettledRound(ctx, r, 0, nil))
	}
	require.NoError(t, s.FlagRound(ctx, "rd")) // 5.0

	all, err := s.SessionMultipliers(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, crashes, all, "chronological order, flagged rounds included")

	tail, err := s.SessionMultipliers(ctx, sess.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.7, 5.0, 1.2}, tail)

	replay, err := s.ReplayMultipliers(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.1, 2.4, 1.7, 1.2}, replay, "flagged round excluded from replay")

	rounds, err := s.ListRounds(ctx, sess.ID, 2)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, 1.2, rounds[0].CrashMultiplier, "newest first")
}

func TestPendingBetsAndTrailingLosses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	sess := testSession(t, s, t0)

	place := func(id string, at time.Time, outcome domain.BetOutcome) {
		b := &domain.Bet{
			ID: id, SessionID: sess.ID, RoundID: "r-" + id, Strategy: "steady",
			Stake: decimal.NewFromInt(10), TargetCashout: 2.0,
			Outcome: domain.BetPending, PlacedAt: at,
		}
		require.NoError(t, s.InsertBet(ctx, b))
		if outcome != domain.BetPending {
			require.NoError(t, s.ResolveBet(ctx, id, outcome, decimal.Zero, at.Add(time.Second)))
		}
	}
	place("b1", t0, domain.BetWon)
	place("b2", t0.Add(time.Minute), domain.BetLost)
	place("b3", t0.Add(2*time.Minute), domain.BetLost)
	place("b4", t0.Add(3*time.Minute), domain.BetPending)

	pending, err := s.PendingBets(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b4", pending[0].ID)

	losses, err := s.TrailingLosses(ctx, sess.ID, "steady")
	require.NoError(t, err)
	assert.Equal(t, 2, losses)

	// unknown outcome breaks the trailing count
	require.NoError(t, s.ResolveBet(ctx, "b4", domain.BetUnknown, decimal.Zero, t0.Add(4*time.Minute)))
	losses, err = s.TrailingLosses(ctx, sess.ID, "steady")
	require.NoError(t, err)
	assert.Equal(t, 0, losses)

	assert.Error(t, s.ResolveBet(ctx, "missing", domain.BetLost, decimal.Zero, t0))
}

func TestBackfillRounds(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	sess := testSession(t, s, t0)

	start := t0
	end := t0.Add(3 * time.Minute)
	require.NoError(t, s.BackfillRounds(ctx, sess.ID, []float64{1.5, 2.0, 4.2}, start, end))

	ms, err := s.SessionMultipliers(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2.0, 4.2}, ms)

	rounds, err := s.ListRounds(ctx, sess.ID, 10)
	require.NoError(t, err)
	require.Len(t, rounds, 3)
	// newest backfilled round sits at the download time
	assert.Equal(t, end, rounds[0].StartedAt)
	assert.True(t, rounds[1].StartedAt.After(start))
	assert.True(t, rounds[1].StartedAt.Before(end))
}

func TestSessionSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	sess := testSession(t, s, t0)

	round := settledRound(sess, "r1", 3.0, t0)
	win := &domain.Bet{
		ID: "b1", SessionID: sess.ID, RoundID: "r1", Strategy: "steady",
		Stake: decimal.NewFromInt(10), TargetCashout: 2.0,
		Outcome: domain.BetPending, PlacedAt: t0,
	}
	lose := &domain.Bet{
		ID: "b2", SessionID: sess.ID, RoundID: "r1", Strategy: "chaser",
		Stake: decimal.NewFromInt(5), TargetCashout: 4.0,
		Outcome: domain.BetPending, PlacedAt: t0,
	}
	require.NoError(t, s.InsertBet(ctx, win))
	require.NoError(t, s.InsertBet(ctx, lose))
	now := t0.Add(10 * time.Second)
	win.SettleAgainst(round, now)
	lose.SettleAgainst(round, now)
	require.NoError(t, s.SaveSettledRound(ctx, round, 0, []*domain.Bet{win, lose}))

	sum, err := s.SessionSummary(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, 2, sum.TotalBets)
	assert.Equal(t, 1, sum.Wins)
	assert.Equal(t, 1, sum.Losses)
	// +10 on the win, -5 on the loss
	assert.True(t, sum.TotalProfit.Equal(decimal.NewFromInt(5)), "profit = %s", sum.TotalProfit)
	assert.Equal(t, 1, sum.Session.TotalRounds)

	missing, err := s.SessionSummary(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
