package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetOutcome 下注结果
type BetOutcome string

const (
	BetPending BetOutcome = "pending" // 等待回合结算
	BetWon     BetOutcome = "won"     // 在爆点前到达目标倍数
	BetLost    BetOutcome = "lost"    // 爆点先于目标倍数出现
	BetUnknown BetOutcome = "unknown" // 恢复时无法判定（排除在连胜/连败统计之外）
)

// Bet 下注领域模型
// 归属于下注时的活跃会话；ResolvedAt 写入后不可变
type Bet struct {
	ID            string          // 下注 ID
	SessionID     string          // 所属会话 ID
	RoundID       string          // 所属回合 ID
	Strategy      string          // 策略名
	Stake         decimal.Decimal // 注金（> 0）
	TargetCashout float64         // 目标兑现倍数（<= 0 表示手动兑现）
	Outcome       BetOutcome      // 结果
	Payout        decimal.Decimal // 赔付（won 时 = Stake * TargetCashout，其余为 0）
	PlacedAt      time.Time       // 下注时间
	ResolvedAt    *time.Time      // 结算时间（nil = pending）
}

// Resolved 下注是否已结算
func (b *Bet) Resolved() bool {
	return b != nil && b.ResolvedAt != nil
}

// Profit 该笔下注的盈亏（pending/unknown 计为 0）
func (b *Bet) Profit() decimal.Decimal {
	switch b.Outcome {
	case BetWon:
		return b.Payout.Sub(b.Stake)
	case BetLost:
		return b.Stake.Neg()
	default:
		return decimal.Zero
	}
}

// SettleAgainst 按回合结果结算下注
// target 到达爆点前 → won，否则 lost；manualValue > 0 表示手动兑现值
func (b *Bet) SettleAgainst(r *Round, now time.Time) {
	if b.Resolved() || !r.Settled() {
		return
	}
	target := b.TargetCashout
	if target <= 0 {
		// 手动兑现的单在回合内已由 cash_out 命令结算，这里兜底按输处理
		b.Outcome = BetLost
		b.Payout = decimal.Zero
		b.ResolvedAt = &now
		return
	}
	if r.ReachedTarget(target) {
		b.Outcome = BetWon
		b.Payout = b.Stake.Mul(decimal.NewFromFloat(target))
	} else {
		b.Outcome = BetLost
		b.Payout = decimal.Zero
	}
	b.ResolvedAt = &now
}
