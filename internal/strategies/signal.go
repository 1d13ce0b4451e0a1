package strategies

import (
	"fmt"

	"github.com/betbot/crasher/internal/domain"
	"github.com/betbot/crasher/internal/hotstreak"
	"github.com/shopspring/decimal"
)

func init() {
	Register("signal", func(cfg Config) (Strategy, error) {
		return &signalStrategy{base: newBase(cfg)}, nil
	})
}

// signalStrategy 信号门控策略
// 只在热度信号满足配置目标时进场：分类命中 / 热streak触发立即下注，
// 形态信号触发则先走确认流程（最近 N 回合中有 K 个高于阈值，或在监控窗口内等到确认）。
// 进场后按倍投推进注金，信号消失且上一笔获胜时主动暂停
type signalStrategy struct {
	base

	running bool // 是否处于一轮连续下注中

	// 确认监控状态
	monitoring     bool
	monitorSeen    int
	monitorHistory []float64
	pendingReason  string
	lastRoundIndex int64
}

func (s *signalStrategy) Decide(gs domain.GameState, sig hotstreak.Signal) Action {
	switch s.phase {
	case PhaseBetPlaced:
		if act, ok := s.liveCashOut(gs); ok {
			return act
		}
		return Skip("等待回合结算")
	case PhaseArmed:
		return PlaceBet(s.currentStake, s.betTarget(), s.pendingReason)
	}
	if s.cooldown > 0 {
		return Skip(fmt.Sprintf("冷却中（剩余 %d 回合）", s.cooldown))
	}
	if !gs.Autopilot {
		return Skip("autopilot 关闭")
	}

	// 连续下注中：输了继续倍投；赢了只在streak仍然存在（或刚结束）时继续
	if s.running {
		if s.consecutiveLosses > 0 || sig.Streak != nil || sig.StreakJustEnded {
			return s.arm("continue run")
		}
		s.running = false
		s.log.Info("信号消失，暂停下注")
		return Skip("信号消失")
	}

	// 分类直接命中目标
	if s.classificationMatches(sig) {
		s.stopMonitoring()
		return s.arm(fmt.Sprintf("%s classification (conf %.2f)", sig.Classification, sig.Confidence))
	}

	// 热streak触发：立即下注
	if sig.Streak != nil {
		if (sig.Streak.Kind == hotstreak.StreakStrong && s.cfg.ActivateOnStrong) ||
			(sig.Streak.Kind == hotstreak.StreakWeak && s.cfg.ActivateOnWeak) {
			s.stopMonitoring()
			return s.arm(string(sig.Streak.Kind) + " streak")
		}
	}

	// 形态信号触发：走确认流程
	if reason, ok := s.matchPattern(sig.Patterns); ok {
		if s.confirmed(gs.Recent) {
			s.stopMonitoring()
			return s.arm(reason + " (confirmed)")
		}
		if s.monitoring {
			s.log.Infof("新信号 %s，重启确认监控", reason)
		} else {
			s.log.Infof("信号 %s，监控后续 %d 回合等待确认（%d+/%d 高于 %.2fx）",
				reason, s.cfg.MonitorRounds, s.cfg.ConfirmCount, s.cfg.ConfirmWindow, s.cfg.ConfirmThreshold)
		}
		s.startMonitoring(reason, gs)
		return Skip("等待信号确认")
	}

	// 监控中：吸收新回合并检查确认
	if s.monitoring {
		return s.monitorRound(gs)
	}

	return Skip("无信号")
}

func (s *signalStrategy) classificationMatches(sig hotstreak.Signal) bool {
	if sig.Confidence < s.cfg.MinConfidence {
		return false
	}
	switch s.cfg.SignalTarget {
	case "hot":
		return sig.Classification == hotstreak.Hot
	case "cold":
		return sig.Classification == hotstreak.Cold
	}
	return false
}

func (s *signalStrategy) matchPattern(patterns []string) (string, bool) {
	for _, want := range s.cfg.ActivateOnPatterns {
		for _, got := range patterns {
			if got == want {
				return got, true
			}
		}
	}
	return "", false
}

// confirmed 最近 ConfirmWindow 个爆点中是否有 ConfirmCount 个高于阈值
func (s *signalStrategy) confirmed(recent []float64) bool {
	if len(recent) < s.cfg.ConfirmWindow {
		return false
	}
	window := recent[len(recent)-s.cfg.ConfirmWindow:]
	n := 0
	for _, m := range window {
		if m >= s.cfg.ConfirmThreshold {
			n++
		}
	}
	return n >= s.cfg.ConfirmCount
}

func (s *signalStrategy) startMonitoring(reason string, gs domain.GameState) {
	s.monitoring = true
	s.monitorSeen = 0
	s.monitorHistory = append([]float64(nil), gs.Recent...)
	s.pendingReason = reason
	s.lastRoundIndex = gs.RoundIndex
}

func (s *signalStrategy) stopMonitoring() {
	s.monitoring = false
	s.monitorSeen = 0
	s.monitorHistory = nil
}

// monitorRound 监控窗口内处理一个新回合
func (s *signalStrategy) monitorRound(gs domain.GameState) Action {
	if gs.RoundIndex == s.lastRoundIndex {
		return Skip("监控中（本回合已处理）")
	}
	s.lastRoundIndex = gs.RoundIndex
	s.monitorSeen++
	if n := len(gs.Recent); n > 0 {
		s.monitorHistory = append(s.monitorHistory, gs.Recent[n-1])
	}
	if s.confirmed(s.monitorHistory) {
		reason := s.pendingReason
		s.stopMonitoring()
		s.log.Infof("监控期内信号确认（%s），下注", reason)
		return s.arm(reason + " (confirmed)")
	}
	if s.monitorSeen >= s.cfg.MonitorRounds {
		s.log.Infof("监控 %d 回合未确认，放弃信号 %s", s.cfg.MonitorRounds, s.pendingReason)
		s.stopMonitoring()
		return Skip("信号未确认")
	}
	return Skip(fmt.Sprintf("监控中 %d/%d", s.monitorSeen, s.cfg.MonitorRounds))
}

// arm 进入 armed 并给出下注动作
func (s *signalStrategy) arm(reason string) Action {
	s.phase = PhaseArmed
	s.running = true
	s.pendingReason = reason
	s.currentStake = s.nextStake()
	return PlaceBet(s.currentStake, s.betTarget(), reason)
}

func (s *signalStrategy) nextStake() decimal.Decimal {
	stake := decimal.NewFromFloat(s.cfg.BaseStake)
	mult := decimal.NewFromFloat(s.cfg.StakeMultiplier)
	for i := 0; i < s.consecutiveLosses; i++ {
		stake = stake.Mul(mult)
	}
	return s.capStake(stake)
}

func (s *signalStrategy) OnSettled(bet *domain.Bet, _ *domain.Round) {
	won, counted := s.settle(bet)
	if !counted {
		return
	}
	if won {
		s.log.Infof("赢 +%s（第 %d 胜，累计 %s）", bet.Profit(), s.wins, s.totalProfit)
		s.currentStake = decimal.NewFromFloat(s.cfg.BaseStake)
		if s.stopForProfit() {
			s.running = false
			s.standDown("止盈")
		}
		return
	}
	s.log.Infof("输 -%s（连败 %d，窗口败场 %d/%d）",
		bet.Stake, s.consecutiveLosses, s.lossesInWindow(), s.cfg.LossCheckWindow)
	if s.stopForLosses() {
		s.running = false
		s.standDown("触及败场限制")
		s.consecutiveLosses = 0
	}
}

// OnBetRejected 下注被拒时终止本轮连续下注
func (s *signalStrategy) OnBetRejected(reason string) {
	s.running = false
	s.stopMonitoring()
	s.base.OnBetRejected(reason)
}

// Reset 显式重置
func (s *signalStrategy) Reset() {
	s.running = false
	s.stopMonitoring()
	s.base.Reset()
}
