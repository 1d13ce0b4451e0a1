package strategies

import (
	"fmt"

	"github.com/betbot/crasher/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// base 各策略变体共用的状态机骨架
// 变体只负责入场判断与注金演进，阶段迁移与计数统一在这里处理
type base struct {
	cfg Config
	log *logrus.Entry

	phase             Phase
	currentStake      decimal.Decimal
	consecutiveLosses int
	wins              int
	cooldown          int
	totalProfit       decimal.Decimal
	recentOutcomes    []domain.BetOutcome // 最近 LossCheckWindow 笔的结果
	pendingBetID      string
}

func newBase(cfg Config) base {
	return base{
		cfg:          cfg,
		log:          logrus.WithField("strategy", cfg.Name),
		phase:        PhaseIdle,
		currentStake: decimal.NewFromFloat(cfg.BaseStake),
	}
}

func (b *base) Name() string { return b.cfg.Name }

// OnRoundStart 每回合推进冷却
func (b *base) OnRoundStart() {
	if b.cooldown > 0 {
		b.cooldown--
	}
}

// OnBetAccepted armed → bet_placed
func (b *base) OnBetAccepted(bet *domain.Bet) {
	b.phase = PhaseBetPlaced
	b.pendingBetID = bet.ID
	b.currentStake = bet.Stake
}

// OnBetRejected 强制回 idle，进入冷却
func (b *base) OnBetRejected(reason string) {
	b.log.Warnf("下注被拒，回到 idle：%s", reason)
	b.phase = PhaseIdle
	b.pendingBetID = ""
	b.cooldown = b.cfg.CooldownRounds
}

// RestoreStreak 恢复时回填连败计数
func (b *base) RestoreStreak(consecutiveLosses int) {
	if consecutiveLosses < 0 {
		consecutiveLosses = 0
	}
	b.consecutiveLosses = consecutiveLosses
}

// settle 记录一笔结算，返回是否获胜；unknown 结果不进入任何计数
func (b *base) settle(bet *domain.Bet) (won bool, counted bool) {
	b.phase = PhaseResolved
	b.pendingBetID = ""
	defer func() { b.phase = PhaseIdle }() // resolved → idle 立即完成

	switch bet.Outcome {
	case domain.BetWon:
		b.wins++
		b.consecutiveLosses = 0
		b.totalProfit = b.totalProfit.Add(bet.Profit())
		b.pushOutcome(domain.BetWon)
		return true, true
	case domain.BetLost:
		b.consecutiveLosses++
		b.totalProfit = b.totalProfit.Add(bet.Profit())
		b.pushOutcome(domain.BetLost)
		return false, true
	default:
		// 恢复产生的 unknown：不奖不罚
		b.log.Warnf("下注 %s 结果不明，跳过连胜/连败计数", bet.ID)
		return false, false
	}
}

func (b *base) pushOutcome(o domain.BetOutcome) {
	b.recentOutcomes = append(b.recentOutcomes, o)
	if len(b.recentOutcomes) > b.cfg.LossCheckWindow {
		b.recentOutcomes = b.recentOutcomes[1:]
	}
}

// lossesInWindow 最近 LossCheckWindow 笔中的败场数
func (b *base) lossesInWindow() int {
	n := 0
	for _, o := range b.recentOutcomes {
		if o == domain.BetLost {
			n++
		}
	}
	return n
}

// stopForLosses 连败或窗口败场达到上限
func (b *base) stopForLosses() bool {
	if b.consecutiveLosses >= b.cfg.MaxConsecutiveLosses {
		return true
	}
	if b.cfg.MaxLossesInWindow > 0 && b.lossesInWindow() >= b.cfg.MaxLossesInWindow {
		return true
	}
	return false
}

// stopForProfit 赢满 N 场
func (b *base) stopForProfit() bool {
	return b.cfg.StopProfitWins > 0 && b.wins >= b.cfg.StopProfitWins
}

// standDown 停止下注并进入冷却
func (b *base) standDown(reason string) {
	b.log.Infof("收手（%s），冷却 %d 回合", reason, b.cfg.CooldownRounds)
	b.phase = PhaseIdle
	b.pendingBetID = ""
	b.cooldown = b.cfg.CooldownRounds
	b.currentStake = decimal.NewFromFloat(b.cfg.BaseStake)
}

func (b *base) Snapshot() Snapshot {
	return Snapshot{
		Name:              b.cfg.Name,
		Policy:            b.cfg.Policy,
		Phase:             b.phase,
		CurrentStake:      b.currentStake,
		ConsecutiveLosses: b.consecutiveLosses,
		Wins:              b.wins,
		Cooldown:          b.cooldown,
		TotalProfit:       b.totalProfit,
		PendingBetID:      b.pendingBetID,
	}
}

// Reset 显式重置（控制命令触发），清空所有计数
func (b *base) Reset() {
	b.phase = PhaseIdle
	b.pendingBetID = ""
	b.currentStake = decimal.NewFromFloat(b.cfg.BaseStake)
	b.consecutiveLosses = 0
	b.wins = 0
	b.cooldown = 0
	b.totalProfit = decimal.Zero
	b.recentOutcomes = nil
}

// betTarget 下单携带的站点自动兑现目标
// 手动兑现模式下发 0（站点不自动兑现），由引擎按实时倍数下发兑现命令
func (b *base) betTarget() float64 {
	if b.cfg.ManualCashout {
		return 0
	}
	return b.cfg.AutoCashout
}

// liveCashOut 手动兑现模式下的持仓决策：实时倍数到达目标即兑现
func (b *base) liveCashOut(gs domain.GameState) (Action, bool) {
	if !b.cfg.ManualCashout || b.phase != PhaseBetPlaced {
		return Action{}, false
	}
	if gs.Phase != domain.PhaseInProgress || gs.Live < b.cfg.AutoCashout {
		return Action{}, false
	}
	return CashOut(fmt.Sprintf("live %.2fx >= %.2fx", gs.Live, b.cfg.AutoCashout)), true
}

// capStake 注金封顶
func (b *base) capStake(stake decimal.Decimal) decimal.Decimal {
	if b.cfg.MaxStake > 0 {
		max := decimal.NewFromFloat(b.cfg.MaxStake)
		if stake.GreaterThan(max) {
			return max
		}
	}
	return stake
}
