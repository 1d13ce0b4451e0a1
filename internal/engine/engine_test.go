package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/betbot/crasher/internal/domain"
	"github.com/betbot/crasher/internal/events"
	"github.com/betbot/crasher/internal/hotstreak"
	"github.com/betbot/crasher/internal/ports"
	"github.com/betbot/crasher/internal/store"
	"github.com/betbot/crasher/internal/strategies"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptDriver records commands and replays scripted errors.
type scriptDriver struct {
	events     chan events.DriverEvent
	placeErrs  []error
	placed     []ports.BetRequest
	cashed     []string
	keepalives int
}

func newScriptDriver() *scriptDriver {
	return &scriptDriver{events: make(chan events.DriverEvent, 32)}
}

func (d *scriptDriver) Connect(context.Context, ports.Credentials) error { return nil }
func (d *scriptDriver) Events() <-chan events.DriverEvent                { return d.events }
func (d *scriptDriver) PlaceBet(_ context.Context, req ports.BetRequest) (ports.BetAck, error) {
	d.placed = append(d.placed, req)
	if len(d.placeErrs) > 0 {
		err := d.placeErrs[0]
		d.placeErrs = d.placeErrs[1:]
		if err != nil {
			return ports.BetAck{}, err
		}
	}
	return ports.BetAck{BetID: fmt.Sprintf("ack-%d", len(d.placed))}, nil
}
func (d *scriptDriver) CashOut(_ context.Context, betID string) (ports.CashOutAck, error) {
	d.cashed = append(d.cashed, betID)
	return ports.CashOutAck{Multiplier: 2.6, Payout: decimal.NewFromInt(26), At: baseTime.Add(30 * time.Second)}, nil
}
func (d *scriptDriver) History(context.Context, int) ([]float64, error) { return nil, nil }
func (d *scriptDriver) Balance(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (d *scriptDriver) Keepalive(context.Context) error { d.keepalives++; return nil }
func (d *scriptDriver) Close() error                    { return nil }

type captureSink struct{ last ports.Snapshot }

func (c *captureSink) Publish(s ports.Snapshot) { c.last = s }

var baseTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func mult(roundID string, seq int64, value float64) events.MultiplierObserved {
	return events.MultiplierObserved{Event: domain.MultiplierEvent{
		RoundID: roundID, Sequence: seq, Value: value,
		ObservedAt: baseTime.Add(time.Duration(seq) * time.Second),
	}}
}

func settled(roundID string, crash float64) events.RoundSettled {
	return events.RoundSettled{RoundID: roundID, CrashMultiplier: crash, At: baseTime.Add(time.Minute)}
}

func newTestEngine(t *testing.T, cfg Config, balance int64, stratCfgs ...strategies.Config) (*Engine, *scriptDriver, *store.Store, *captureSink) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "crasher.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	sess := domain.Session{ID: "sess-1", StartedAt: baseTime, StartBalance: decimal.NewFromInt(balance)}
	require.NoError(t, s.CreateSession(context.Background(), sess))

	var strats []strategies.Strategy
	for _, sc := range stratCfgs {
		st, err := strategies.New(sc)
		require.NoError(t, err)
		strats = append(strats, st)
	}

	drv := newScriptDriver()
	sink := &captureSink{}
	cfg.Autopilot = true
	cfg.RetryBackoff = time.Millisecond
	e := New(cfg, s, drv, hotstreak.New(hotstreak.Config{}), strats, sink)
	// 入场条件：最近 3 个爆点都低于 2.0
	e.Seed(sess, decimal.NewFromInt(balance), []float64{1.5, 1.5, 1.5}, nil)
	return e, drv, s, sink
}

func steadyCfg() strategies.Config {
	return strategies.Config{Name: "steady", Policy: "fixed", BaseStake: 10, AutoCashout: 2.5}
}

func TestRoundPersistedExactlyOnce(t *testing.T) {
	e, _, s, _ := newTestEngine(t, Config{}, 100)
	ctx := context.Background()

	e.handleEvent(ctx, mult("r1", 1, 1.0))
	e.handleEvent(ctx, mult("r1", 2, 2.0))
	e.handleEvent(ctx, settled("r1", 3.2))
	// duplicate settle for the same round must not create a second record
	e.handleEvent(ctx, settled("r1", 3.2))

	rounds, err := s.ListRounds(ctx, "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, "r1", rounds[0].ID)
	assert.Equal(t, 3.2, rounds[0].CrashMultiplier)

	got, err := s.RoundWithEvents(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got.Events, 2)
}

func TestSettlementAgainstCrash(t *testing.T) {
	chaser := strategies.Config{Name: "chaser", Policy: "martingale", BaseStake: 10, AutoCashout: 4.0}
	e, drv, s, sink := newTestEngine(t, Config{}, 100, steadyCfg(), chaser)
	ctx := context.Background()

	e.handleEvent(ctx, mult("r1", 1, 1.0))
	require.Len(t, drv.placed, 2, "both strategies should bet at round start")

	// crash 3.2: target 2.5 wins, target 4.0 loses
	e.handleEvent(ctx, settled("r1", 3.2))

	bets, err := s.BetsBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, bets, 2)
	byStrategy := map[string]domain.Bet{}
	for _, b := range bets {
		byStrategy[b.Strategy] = b
	}
	assert.Equal(t, domain.BetWon, byStrategy["steady"].Outcome)
	assert.True(t, byStrategy["steady"].Payout.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, domain.BetLost, byStrategy["chaser"].Outcome)

	// 100 - 10 - 10 + 25
	e.publish()
	assert.True(t, sink.last.Balance.Equal(decimal.NewFromInt(105)), "balance = %s", sink.last.Balance)
}

func TestConstraintViolationLeavesNoBetRecord(t *testing.T) {
	e, drv, s, _ := newTestEngine(t, Config{}, 5, steadyCfg())
	ctx := context.Background()

	e.handleEvent(ctx, mult("r1", 1, 1.0))

	assert.Empty(t, drv.placed, "stake 10 against balance 5 must not reach the driver")
	bets, err := s.BetsBySession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, bets)

	snap := e.strats[0].Snapshot()
	assert.Equal(t, strategies.PhaseIdle, snap.Phase)
	assert.Greater(t, snap.Cooldown, 0, "rejection puts the strategy into cooldown")
}

func TestNoSecondPendingBetPerStrategy(t *testing.T) {
	e, drv, _, _ := newTestEngine(t, Config{}, 100, steadyCfg())
	ctx := context.Background()

	e.handleEvent(ctx, mult("r1", 1, 1.0))
	require.Len(t, drv.placed, 1)

	// manual activation while a bet is pending must not double-bet
	e.handleCommand(ctx, events.ControlCommand{Action: events.ControlActivateStrategy, Strategy: "steady"})
	assert.Len(t, drv.placed, 1)
}

func TestManualCashoutAtLiveTarget(t *testing.T) {
	manual := strategies.Config{Name: "manual", Policy: "fixed", BaseStake: 10, AutoCashout: 2.5, ManualCashout: true}
	e, drv, s, sink := newTestEngine(t, Config{}, 100, manual)
	ctx := context.Background()

	e.handleEvent(ctx, mult("r1", 1, 1.0))
	require.Len(t, drv.placed, 1)
	assert.Zero(t, drv.placed[0].TargetCashout, "manual mode must not hand the cashout to the site")

	e.handleEvent(ctx, mult("r1", 2, 2.0))
	assert.Empty(t, drv.cashed, "below target the position stays open")

	e.handleEvent(ctx, mult("r1", 3, 2.6))
	require.Len(t, drv.cashed, 1)

	bets, err := s.BetsBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.Equal(t, domain.BetWon, bets[0].Outcome)
	assert.True(t, bets[0].Payout.Equal(decimal.NewFromInt(26)))

	// 回合随后才爆：已兑现的单不能被二次结算
	e.handleEvent(ctx, settled("r1", 1.0))
	bets, err = s.BetsBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.Equal(t, domain.BetWon, bets[0].Outcome)

	// 100 - 10 + 26
	e.publish()
	assert.True(t, sink.last.Balance.Equal(decimal.NewFromInt(116)), "balance = %s", sink.last.Balance)
}

func TestCashOutControlCommand(t *testing.T) {
	e, drv, s, _ := newTestEngine(t, Config{}, 100, steadyCfg())
	ctx := context.Background()

	e.handleEvent(ctx, mult("r1", 1, 1.0))
	require.Len(t, drv.placed, 1)

	e.handleCommand(ctx, events.ControlCommand{Action: events.ControlCashOut, Strategy: "steady"})
	require.Len(t, drv.cashed, 1)

	bets, err := s.BetsBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.Equal(t, bets[0].ID, drv.cashed[0])
	assert.Equal(t, domain.BetWon, bets[0].Outcome)

	// 没有持仓时命令是空操作
	e.handleCommand(ctx, events.ControlCommand{Action: events.ControlCashOut, Strategy: "steady"})
	assert.Len(t, drv.cashed, 1)
}

func TestTransientFailureRetriedOnce(t *testing.T) {
	e, drv, s, _ := newTestEngine(t, Config{}, 100, steadyCfg())
	drv.placeErrs = []error{&domain.TransientError{Op: "place_bet", Err: context.DeadlineExceeded}}
	ctx := context.Background()

	e.handleEvent(ctx, mult("r1", 1, 1.0))

	assert.Len(t, drv.placed, 2, "one retry after a transient failure")
	bets, err := s.BetsBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.Equal(t, domain.BetPending, bets[0].Outcome)
}

func TestNonTransientFailureNotRetried(t *testing.T) {
	e, drv, s, _ := newTestEngine(t, Config{}, 100, steadyCfg())
	drv.placeErrs = []error{domain.ErrAuth}
	ctx := context.Background()

	e.handleEvent(ctx, mult("r1", 1, 1.0))

	assert.Len(t, drv.placed, 1)
	bets, err := s.BetsBySession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, bets)
	assert.Equal(t, strategies.PhaseIdle, e.strats[0].Snapshot().Phase)
}

func TestVanishedRoundMarksBetsUnknown(t *testing.T) {
	e, drv, s, _ := newTestEngine(t, Config{}, 100, steadyCfg())
	ctx := context.Background()

	e.handleEvent(ctx, mult("r1", 1, 1.0))
	require.Len(t, drv.placed, 1)

	// the next round starts without r1 ever settling
	e.handleEvent(ctx, mult("r2", 1, 1.0))

	bets, err := s.BetsBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.Equal(t, domain.BetUnknown, bets[0].Outcome)
	// unknown outcome leaves streak counters untouched
	assert.Zero(t, e.strats[0].Snapshot().ConsecutiveLosses)
}

func TestGlobalLossLimitHaltsBetting(t *testing.T) {
	cfg := Config{MaxSessionLoss: decimal.NewFromInt(10)}
	e, drv, _, sink := newTestEngine(t, cfg, 100, steadyCfg())
	ctx := context.Background()

	e.handleEvent(ctx, mult("r1", 1, 1.0))
	require.Len(t, drv.placed, 1)
	e.handleEvent(ctx, settled("r1", 1.2)) // lost: -10 reaches the limit
	e.publish()
	assert.True(t, sink.last.Halted)

	e.handleEvent(ctx, mult("r2", 1, 1.0))
	assert.Len(t, drv.placed, 1, "halted engine must not place bets")
}

func TestPauseStopsBettingButKeepsData(t *testing.T) {
	e, drv, s, _ := newTestEngine(t, Config{}, 100, steadyCfg())
	ctx := context.Background()

	e.handleCommand(ctx, events.ControlCommand{Action: events.ControlPause})
	e.handleEvent(ctx, mult("r1", 1, 1.0))
	assert.Empty(t, drv.placed)
	e.handleEvent(ctx, settled("r1", 2.2))

	rounds, err := s.ListRounds(ctx, "sess-1", 10)
	require.NoError(t, err)
	assert.Len(t, rounds, 1, "rounds keep being recorded while paused")

	e.handleCommand(ctx, events.ControlCommand{Action: events.ControlResume})
	e.handleEvent(ctx, mult("r2", 1, 1.0))
	assert.Len(t, drv.placed, 1)
}

func TestStopDrainsCurrentRound(t *testing.T) {
	e, drv, s, _ := newTestEngine(t, Config{}, 100, steadyCfg())

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	drv.events <- mult("r1", 1, 1.0)
	// wait for the bet to land before asking for the stop
	require.Eventually(t, func() bool {
		bets, err := s.BetsBySession(context.Background(), "sess-1")
		return err == nil && len(bets) == 1
	}, 2*time.Second, 10*time.Millisecond)
	e.Submit(events.ControlCommand{Action: events.ControlStop})
	drv.events <- settled("r1", 3.0)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("引擎没有在回合结算后停机")
	}

	ctx := context.Background()
	bets, err := s.BetsBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.Equal(t, domain.BetWon, bets[0].Outcome, "stop must still settle the in-flight bet")

	last, err := s.LastSession(ctx)
	require.NoError(t, err)
	assert.False(t, last.Active(), "session closed with its end balance")
	require.NotNil(t, last.EndBalance)
	assert.True(t, last.EndBalance.Equal(decimal.NewFromInt(115)))
}

func TestKeepaliveEveryNRounds(t *testing.T) {
	e, drv, _, _ := newTestEngine(t, Config{KeepaliveRounds: 2}, 5)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		id := fmt.Sprintf("r%d", i)
		e.handleEvent(ctx, mult(id, 1, 1.0))
		e.handleEvent(ctx, settled(id, 1.5))
	}
	assert.Equal(t, 2, drv.keepalives)
}

func TestUpdateStrategyConfig(t *testing.T) {
	e, drv, _, _ := newTestEngine(t, Config{}, 100, steadyCfg())
	ctx := context.Background()

	raw := []byte("name: steady\npolicy: fixed\nbaseStake: 25\nautoCashout: 3.0\n")
	e.handleCommand(ctx, events.ControlCommand{Action: events.ControlUpdateConfig, Strategy: "steady", Raw: raw})

	e.handleEvent(ctx, mult("r1", 1, 1.0))
	require.Len(t, drv.placed, 1)
	assert.True(t, drv.placed[0].Stake.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, 3.0, drv.placed[0].TargetCashout)
}
