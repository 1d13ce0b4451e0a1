package strategies

import (
	"testing"
	"time"

	"github.com/betbot/crasher/internal/domain"
	"github.com/betbot/crasher/internal/hotstreak"
	"github.com/shopspring/decimal"
)

func gameState(recent []float64) domain.GameState {
	return domain.GameState{
		Phase:     domain.PhaseInProgress,
		RoundID:   "round-1",
		Balance:   decimal.NewFromInt(1000),
		Recent:    recent,
		Autopilot: true,
		Now:       time.Now(),
	}
}

func settleBet(t *testing.T, s Strategy, outcome domain.BetOutcome, stake float64, target float64) {
	t.Helper()
	now := time.Now()
	bet := &domain.Bet{
		ID:            "bet-1",
		RoundID:       "round-1",
		Strategy:      s.Name(),
		Stake:         decimal.NewFromFloat(stake),
		TargetCashout: target,
		Outcome:       outcome,
		ResolvedAt:    &now,
	}
	if outcome == domain.BetWon {
		bet.Payout = bet.Stake.Mul(decimal.NewFromFloat(target))
	}
	s.OnSettled(bet, &domain.Round{ID: "round-1", CrashMultiplier: 3.0})
}

// TestFixedTriggerArms 测试 fixed 策略的触发入场
func TestFixedTriggerArms(t *testing.T) {
	s, err := New(Config{Name: "primary", Policy: "fixed", BaseStake: 10, AutoCashout: 2.0, TriggerThreshold: 2.0, TriggerCount: 3})
	if err != nil {
		t.Fatalf("创建策略失败: %v", err)
	}

	// 条件未满足：最近 3 个中有高倍数
	act := s.Decide(gameState([]float64{1.5, 3.0, 1.2}), hotstreak.Signal{})
	if act.Type != ActionSkip {
		t.Errorf("条件未满足时应该 skip，实际为 %s", act.Type)
	}

	// 条件满足：最近 3 个全部低于 2.0
	act = s.Decide(gameState([]float64{1.5, 1.8, 1.2}), hotstreak.Signal{})
	if act.Type != ActionBet {
		t.Fatalf("条件满足时应该下注，实际为 %s", act.Type)
	}
	if !act.Stake.Equal(decimal.NewFromInt(10)) {
		t.Errorf("fixed 策略注金应该为 10，实际为 %s", act.Stake)
	}
	if act.TargetCashout != 2.0 {
		t.Errorf("目标兑现应该为 2.0，实际为 %.2f", act.TargetCashout)
	}
	if s.Snapshot().Phase != PhaseArmed {
		t.Errorf("下注动作后状态应该为 armed，实际为 %s", s.Snapshot().Phase)
	}
}

// TestManualCashoutDecision 测试手动兑现模式：下单不带站点目标，实时倍数到达目标时给出兑现动作
func TestManualCashoutDecision(t *testing.T) {
	s, err := New(Config{Name: "m", Policy: "fixed", BaseStake: 10, AutoCashout: 2.5, ManualCashout: true, TriggerCount: 1, TriggerThreshold: 2.0})
	if err != nil {
		t.Fatalf("创建策略失败: %v", err)
	}

	act := s.Decide(gameState([]float64{1.5}), hotstreak.Signal{})
	if act.Type != ActionBet {
		t.Fatalf("应该下注，实际为 %s", act.Type)
	}
	if act.TargetCashout != 0 {
		t.Errorf("手动兑现模式下单不应携带站点目标，实际为 %.2f", act.TargetCashout)
	}
	s.OnBetAccepted(&domain.Bet{ID: "bet-1", Stake: act.Stake, Outcome: domain.BetPending})

	gs := gameState([]float64{1.5})
	gs.Live = 2.0
	if act := s.Decide(gs, hotstreak.Signal{}); act.Type != ActionSkip {
		t.Errorf("未到目标倍数时应该 skip，实际为 %s", act.Type)
	}
	gs.Live = 2.6
	if act := s.Decide(gs, hotstreak.Signal{}); act.Type != ActionCashOut {
		t.Errorf("到达目标倍数后应该兑现，实际为 %s", act.Type)
	}
}

// TestPhaseTransitions 测试状态机 idle → armed → bet_placed → idle
func TestPhaseTransitions(t *testing.T) {
	s, _ := New(Config{Name: "p", Policy: "fixed", TriggerCount: 1, TriggerThreshold: 2.0})

	act := s.Decide(gameState([]float64{1.5}), hotstreak.Signal{})
	if act.Type != ActionBet {
		t.Fatalf("应该下注，实际为 %s", act.Type)
	}

	s.OnBetAccepted(&domain.Bet{ID: "bet-1", Stake: act.Stake, Outcome: domain.BetPending})
	if s.Snapshot().Phase != PhaseBetPlaced {
		t.Fatalf("接受下注后状态应该为 bet_placed，实际为 %s", s.Snapshot().Phase)
	}

	// bet_placed 期间不再产生新下注
	act = s.Decide(gameState([]float64{1.5}), hotstreak.Signal{})
	if act.Type != ActionSkip {
		t.Errorf("bet_placed 期间应该 skip，实际为 %s", act.Type)
	}

	settleBet(t, s, domain.BetWon, 10, 2.0)
	if s.Snapshot().Phase != PhaseIdle {
		t.Errorf("结算后状态应该回到 idle，实际为 %s", s.Snapshot().Phase)
	}
	if s.Snapshot().Wins != 1 {
		t.Errorf("胜场应该为 1，实际为 %d", s.Snapshot().Wins)
	}
}

// TestBetRejectedForcesIdle 测试下注被拒后强制回 idle 并冷却
func TestBetRejectedForcesIdle(t *testing.T) {
	s, _ := New(Config{Name: "p", Policy: "fixed", TriggerCount: 1, TriggerThreshold: 2.0, CooldownRounds: 3})

	act := s.Decide(gameState([]float64{1.5}), hotstreak.Signal{})
	if act.Type != ActionBet {
		t.Fatalf("应该下注，实际为 %s", act.Type)
	}
	s.OnBetRejected("insufficient balance")

	snap := s.Snapshot()
	if snap.Phase != PhaseIdle {
		t.Errorf("被拒后状态应该为 idle，实际为 %s", snap.Phase)
	}
	if snap.Cooldown != 3 {
		t.Errorf("被拒后应该进入 3 回合冷却，实际为 %d", snap.Cooldown)
	}

	// 冷却期间即使条件满足也不下注
	act = s.Decide(gameState([]float64{1.5}), hotstreak.Signal{})
	if act.Type != ActionSkip {
		t.Errorf("冷却期间应该 skip，实际为 %s", act.Type)
	}
}

// TestMartingaleProgression 测试倍投注金演进与封顶
func TestMartingaleProgression(t *testing.T) {
	s, _ := New(Config{
		Name: "m", Policy: "martingale",
		BaseStake: 10, StakeMultiplier: 2.0, MaxStake: 50,
		TriggerCount: 1, TriggerThreshold: 2.0, MaxConsecutiveLosses: 10,
	})

	// 第一注：10
	act := s.Decide(gameState([]float64{1.5}), hotstreak.Signal{})
	if !act.Stake.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("第一注应该为 10，实际为 %s", act.Stake)
	}
	s.OnBetAccepted(&domain.Bet{ID: "b1", Stake: act.Stake})
	settleBet(t, s, domain.BetLost, 10, 2.0)

	// 第二注：20（连败接续，不需要重新触发）
	act = s.Decide(gameState([]float64{5.0}), hotstreak.Signal{})
	if act.Type != ActionBet || !act.Stake.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("第二注应该为 20，实际为 %s (%s)", act.Stake, act.Type)
	}
	s.OnBetAccepted(&domain.Bet{ID: "b2", Stake: act.Stake})
	settleBet(t, s, domain.BetLost, 20, 2.0)

	// 第三注：40
	act = s.Decide(gameState([]float64{5.0}), hotstreak.Signal{})
	if !act.Stake.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("第三注应该为 40，实际为 %s", act.Stake)
	}
	s.OnBetAccepted(&domain.Bet{ID: "b3", Stake: act.Stake})
	settleBet(t, s, domain.BetLost, 40, 2.0)

	// 第四注：封顶 50
	act = s.Decide(gameState([]float64{5.0}), hotstreak.Signal{})
	if !act.Stake.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("第四注应该封顶为 50，实际为 %s", act.Stake)
	}

	// 获胜后回到基础注金
	s.OnBetAccepted(&domain.Bet{ID: "b4", Stake: act.Stake})
	settleBet(t, s, domain.BetWon, 50, 2.0)
	if s.Snapshot().ConsecutiveLosses != 0 {
		t.Errorf("获胜后连败计数应该归零，实际为 %d", s.Snapshot().ConsecutiveLosses)
	}
}

// TestMartingaleStopsOnMaxLosses 测试连败触顶后收手
func TestMartingaleStopsOnMaxLosses(t *testing.T) {
	s, _ := New(Config{
		Name: "m", Policy: "martingale",
		BaseStake: 10, TriggerCount: 1, TriggerThreshold: 2.0,
		MaxConsecutiveLosses: 2, CooldownRounds: 5,
	})

	for i := 0; i < 2; i++ {
		act := s.Decide(gameState([]float64{1.5}), hotstreak.Signal{})
		if act.Type != ActionBet {
			t.Fatalf("第 %d 注应该下注，实际为 %s", i+1, act.Type)
		}
		s.OnBetAccepted(&domain.Bet{ID: "b", Stake: act.Stake})
		settleBet(t, s, domain.BetLost, 10, 2.0)
	}

	snap := s.Snapshot()
	if snap.Cooldown != 5 {
		t.Errorf("连败触顶后应该进入冷却，实际 cooldown=%d", snap.Cooldown)
	}
	if act := s.Decide(gameState([]float64{1.5}), hotstreak.Signal{}); act.Type != ActionSkip {
		t.Errorf("冷却期间应该 skip，实际为 %s", act.Type)
	}
}

// TestUnknownOutcomeNotCounted 测试 unknown 结果不进入连胜/连败统计
func TestUnknownOutcomeNotCounted(t *testing.T) {
	s, _ := New(Config{Name: "p", Policy: "fixed", TriggerCount: 1, TriggerThreshold: 2.0})

	act := s.Decide(gameState([]float64{1.5}), hotstreak.Signal{})
	s.OnBetAccepted(&domain.Bet{ID: "b1", Stake: act.Stake})
	settleBet(t, s, domain.BetUnknown, 10, 2.0)

	snap := s.Snapshot()
	if snap.ConsecutiveLosses != 0 || snap.Wins != 0 {
		t.Errorf("unknown 结果不应该计数，实际 losses=%d wins=%d", snap.ConsecutiveLosses, snap.Wins)
	}
	if snap.Phase != PhaseIdle {
		t.Errorf("unknown 结算后状态应该回到 idle，实际为 %s", snap.Phase)
	}
}
