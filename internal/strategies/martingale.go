package strategies

import (
	"fmt"

	"github.com/betbot/crasher/internal/domain"
	"github.com/betbot/crasher/internal/hotstreak"
	"github.com/shopspring/decimal"
)

func init() {
	Register("martingale", func(cfg Config) (Strategy, error) {
		return &martingaleStrategy{base: newBase(cfg)}, nil
	})
}

// martingaleStrategy 倍投策略
// 与 fixed 相同的入场条件；每次失败后注金乘 StakeMultiplier，受 MaxStake 封顶，
// 连败触顶后收手进入冷却
type martingaleStrategy struct {
	base
}

func (s *martingaleStrategy) Decide(gs domain.GameState, _ hotstreak.Signal) Action {
	switch s.phase {
	case PhaseBetPlaced:
		if act, ok := s.liveCashOut(gs); ok {
			return act
		}
		return Skip("等待回合结算")
	case PhaseArmed:
		return PlaceBet(s.currentStake, s.betTarget(), "armed")
	}
	if s.cooldown > 0 {
		return Skip(fmt.Sprintf("冷却中（剩余 %d 回合）", s.cooldown))
	}
	if !gs.Autopilot {
		return Skip("autopilot 关闭")
	}
	// 连败接续：上一笔输了就继续倍投，不需要重新满足触发条件
	continuing := s.consecutiveLosses > 0
	if !continuing && !gs.RecentAllUnder(s.cfg.TriggerCount, s.cfg.TriggerThreshold) {
		return Skip("入场条件未满足")
	}
	s.phase = PhaseArmed
	s.currentStake = s.nextStake()
	reason := "trigger"
	if continuing {
		reason = fmt.Sprintf("martingale step %d", s.consecutiveLosses)
	}
	return PlaceBet(s.currentStake, s.betTarget(), reason)
}

// nextStake 按连败数推算注金：base * multiplier^losses，MaxStake 封顶
func (s *martingaleStrategy) nextStake() decimal.Decimal {
	stake := decimal.NewFromFloat(s.cfg.BaseStake)
	mult := decimal.NewFromFloat(s.cfg.StakeMultiplier)
	for i := 0; i < s.consecutiveLosses; i++ {
		stake = stake.Mul(mult)
	}
	return s.capStake(stake)
}

func (s *martingaleStrategy) OnSettled(bet *domain.Bet, _ *domain.Round) {
	won, counted := s.settle(bet)
	if !counted {
		return
	}
	if won {
		s.log.Infof("赢 +%s（累计 %s）", bet.Profit(), s.totalProfit)
		s.currentStake = decimal.NewFromFloat(s.cfg.BaseStake)
		if s.stopForProfit() {
			s.standDown("止盈")
		}
		return
	}
	s.log.Infof("输 -%s（连败 %d，下一注 %s）", bet.Stake, s.consecutiveLosses, s.nextStake())
	if s.stopForLosses() {
		s.standDown("连败触顶")
		s.consecutiveLosses = 0
	}
}
