package strategies

import (
	"testing"

	"github.com/betbot/crasher/internal/domain"
	"github.com/betbot/crasher/internal/hotstreak"
)

func newSignalStrategy(t *testing.T, cfg Config) Strategy {
	t.Helper()
	cfg.Policy = "signal"
	if cfg.Name == "" {
		cfg.Name = "custom"
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("创建 signal 策略失败: %v", err)
	}
	return s
}

// TestSignalArmsOnClassification 测试分类命中目标时立即下注
func TestSignalArmsOnClassification(t *testing.T) {
	s := newSignalStrategy(t, Config{SignalTarget: "hot", MinConfidence: 0.5})

	sig := hotstreak.Signal{Classification: hotstreak.Hot, Confidence: 0.8}
	act := s.Decide(gameState([]float64{2.0, 3.0}), sig)
	if act.Type != ActionBet {
		t.Fatalf("hot 分类命中时应该下注，实际为 %s", act.Type)
	}

	// 置信度不足时不下注
	s2 := newSignalStrategy(t, Config{Name: "custom2", SignalTarget: "hot", MinConfidence: 0.9})
	act = s2.Decide(gameState([]float64{2.0, 3.0}), sig)
	if act.Type != ActionSkip {
		t.Errorf("置信度不足时应该 skip，实际为 %s", act.Type)
	}
}

// TestSignalArmsOnStrongStreak 测试强热streak触发立即下注
func TestSignalArmsOnStrongStreak(t *testing.T) {
	s := newSignalStrategy(t, Config{ActivateOnStrong: true})

	sig := hotstreak.Signal{Streak: &hotstreak.Streak{Kind: hotstreak.StreakStrong, Length: 12, Average: 4.2}}
	act := s.Decide(gameState([]float64{3.0, 4.0}), sig)
	if act.Type != ActionBet {
		t.Fatalf("强热streak应该触发下注，实际为 %s", act.Type)
	}

	// 弱streak未开启时不触发
	s2 := newSignalStrategy(t, Config{Name: "custom2", ActivateOnStrong: true})
	weak := hotstreak.Signal{Streak: &hotstreak.Streak{Kind: hotstreak.StreakWeak}}
	if act := s2.Decide(gameState(nil), weak); act.Type != ActionSkip {
		t.Errorf("弱streak未开启时应该 skip，实际为 %s", act.Type)
	}
}

// TestSignalPatternConfirmation 测试形态信号的确认流程
func TestSignalPatternConfirmation(t *testing.T) {
	s := newSignalStrategy(t, Config{
		ActivateOnPatterns: []string{"rule_of_17"},
		ConfirmThreshold:   2.0,
		ConfirmCount:       3,
		ConfirmWindow:      5,
		MonitorRounds:      4,
	})

	// 最近 5 个中已有 3 个高于 2.0：立即确认下注
	sig := hotstreak.Signal{Patterns: []string{"rule_of_17"}}
	act := s.Decide(gameState([]float64{2.5, 1.2, 3.0, 1.5, 2.2}), sig)
	if act.Type != ActionBet {
		t.Fatalf("确认条件已满足时应该立即下注，实际为 %s（%s）", act.Type, act.Reason)
	}
}

// TestSignalPatternMonitoring 测试确认不满足时进入监控并在窗口内确认
func TestSignalPatternMonitoring(t *testing.T) {
	s := newSignalStrategy(t, Config{
		ActivateOnPatterns: []string{"pre_streak"},
		ConfirmThreshold:   2.0,
		ConfirmCount:       3,
		ConfirmWindow:      5,
		MonitorRounds:      6,
	})

	// 触发信号但确认不足：进入监控
	gs := gameState([]float64{1.2, 1.1, 1.5, 1.3, 2.5})
	gs.RoundIndex = 10
	act := s.Decide(gs, hotstreak.Signal{Patterns: []string{"pre_streak"}})
	if act.Type != ActionSkip {
		t.Fatalf("确认不足时应该先监控，实际为 %s", act.Type)
	}

	// 后续回合陆续出高倍数：监控窗口内确认
	recent := []float64{1.2, 1.1, 1.5, 1.3, 2.5}
	var got Action
	for i, m := range []float64{2.8, 1.4, 3.5} {
		recent = append(recent, m)
		gs := gameState(recent)
		gs.RoundIndex = int64(11 + i)
		got = s.Decide(gs, hotstreak.Signal{})
		if got.Type == ActionBet {
			break
		}
	}
	if got.Type != ActionBet {
		t.Errorf("监控窗口内确认后应该下注，实际为 %s（%s）", got.Type, got.Reason)
	}
}

// TestSignalMonitorExpiry 测试监控窗口过期后放弃信号
func TestSignalMonitorExpiry(t *testing.T) {
	s := newSignalStrategy(t, Config{
		ActivateOnPatterns: []string{"pre_streak"},
		ConfirmThreshold:   2.0,
		ConfirmCount:       3,
		ConfirmWindow:      5,
		MonitorRounds:      3,
	})

	gs := gameState([]float64{1.2, 1.1, 1.5, 1.3, 1.4})
	gs.RoundIndex = 1
	s.Decide(gs, hotstreak.Signal{Patterns: []string{"pre_streak"}})

	recent := gs.Recent
	for i := 0; i < 5; i++ {
		recent = append(recent, 1.1)
		next := gameState(recent)
		next.RoundIndex = int64(2 + i)
		if act := s.Decide(next, hotstreak.Signal{}); act.Type == ActionBet {
			t.Fatal("低倍数序列不应该触发下注")
		}
	}
	// 过期后即使出现确认序列，没有新信号也不下注
	recent = append(recent, 3.0, 3.0, 3.0)
	next := gameState(recent)
	next.RoundIndex = 99
	if act := s.Decide(next, hotstreak.Signal{}); act.Type != ActionSkip {
		t.Errorf("监控过期后无新信号应该 skip，实际为 %s", act.Type)
	}
}

// TestSignalPausesAfterWinWithoutStreak 测试获胜后信号消失时主动暂停
func TestSignalPausesAfterWinWithoutStreak(t *testing.T) {
	s := newSignalStrategy(t, Config{ActivateOnStrong: true, MaxConsecutiveLosses: 10})

	sig := hotstreak.Signal{Streak: &hotstreak.Streak{Kind: hotstreak.StreakStrong}}
	act := s.Decide(gameState([]float64{3.0}), sig)
	if act.Type != ActionBet {
		t.Fatalf("应该下注，实际为 %s", act.Type)
	}
	s.OnBetAccepted(&domain.Bet{ID: "b1", Stake: act.Stake})
	settleBet(t, s, domain.BetWon, 10, 2.0)

	// streak仍在：继续下注
	act = s.Decide(gameState([]float64{3.0, 2.5}), sig)
	if act.Type != ActionBet {
		t.Fatalf("streak仍在时获胜后应该继续下注，实际为 %s", act.Type)
	}
	s.OnBetAccepted(&domain.Bet{ID: "b2", Stake: act.Stake})
	settleBet(t, s, domain.BetWon, 10, 2.0)

	// streak消失：暂停
	act = s.Decide(gameState([]float64{3.0, 2.5, 1.2}), hotstreak.Signal{})
	if act.Type != ActionSkip {
		t.Errorf("信号消失后应该暂停，实际为 %s", act.Type)
	}
}
