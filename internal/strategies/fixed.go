package strategies

import (
	"fmt"

	"github.com/betbot/crasher/internal/domain"
	"github.com/betbot/crasher/internal/hotstreak"
	"github.com/shopspring/decimal"
)

func init() {
	Register("fixed", func(cfg Config) (Strategy, error) {
		return &fixedStrategy{base: newBase(cfg)}, nil
	})
}

// fixedStrategy 固定注金策略
// 入场条件：最近 TriggerCount 个爆点全部低于 TriggerThreshold；每次都用基础注金
type fixedStrategy struct {
	base
}

func (s *fixedStrategy) Decide(gs domain.GameState, _ hotstreak.Signal) Action {
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
	if !gs.RecentAllUnder(s.cfg.TriggerCount, s.cfg.TriggerThreshold) {
		return Skip("入场条件未满足")
	}
	s.phase = PhaseArmed
	s.currentStake = decimal.NewFromFloat(s.cfg.BaseStake)
	s.log.Infof("触发入场：最近 %d 回合均低于 %.2fx", s.cfg.TriggerCount, s.cfg.TriggerThreshold)
	return PlaceBet(s.currentStake, s.betTarget(),
		fmt.Sprintf("last %d under %.2fx", s.cfg.TriggerCount, s.cfg.TriggerThreshold))
}

func (s *fixedStrategy) OnSettled(bet *domain.Bet, _ *domain.Round) {
	won, counted := s.settle(bet)
	if !counted {
		return
	}
	if won {
		s.log.Infof("赢 +%s（累计 %s）", bet.Profit(), s.totalProfit)
	} else {
		s.log.Infof("输 -%s（连败 %d）", bet.Stake, s.consecutiveLosses)
	}
	if s.stopForLosses() || s.stopForProfit() {
		s.standDown("触及止损/止盈限制")
	}
	// 固定注金：每回合都回到基础注金
	s.currentStake = decimal.NewFromFloat(s.cfg.BaseStake)
}
