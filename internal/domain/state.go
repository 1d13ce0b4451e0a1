package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoundPhase 引擎回合状态机阶段
type RoundPhase string

const (
	PhaseAwaitingRoundStart RoundPhase = "awaiting_round_start" // 等待新回合的第一条倍数事件
	PhaseInProgress         RoundPhase = "in_progress"          // 回合进行中，可下注
	PhaseSettling           RoundPhase = "settling"             // 收到爆点，正在结算
	PhaseSettled            RoundPhase = "settled"              // 落库完成，即将回到等待
)

// GameState 策略决策输入
// 引擎在每个决策点构造一份快照传给策略，策略不得持有它的引用跨回合使用
type GameState struct {
	Phase       RoundPhase      // 当前回合阶段
	RoundID     string          // 当前回合 ID（等待阶段为空）
	RoundIndex  int64           // 本会话内的回合序号
	Live        float64         // 当前实时倍数（进行中时有效）
	Balance     decimal.Decimal // 可用余额
	Recent      []float64       // 最近若干回合的爆点倍数（新在后）
	Autopilot   bool            // 自动驾驶开关
	Now         time.Time       // 决策时刻
}

// RecentAllUnder 最近 n 个爆点是否全部低于阈值（primary 策略触发条件）
func (g GameState) RecentAllUnder(n int, threshold float64) bool {
	if n <= 0 || len(g.Recent) < n {
		return false
	}
	for _, m := range g.Recent[len(g.Recent)-n:] {
		if m >= threshold {
			return false
		}
	}
	return true
}
