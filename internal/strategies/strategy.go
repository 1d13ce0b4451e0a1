package strategies

import (
	"fmt"
	"sync"

	"github.com/betbot/crasher/internal/domain"
	"github.com/betbot/crasher/internal/hotstreak"
	"github.com/shopspring/decimal"
)

// ActionType 策略决策动作类型
type ActionType string

const (
	ActionSkip    ActionType = "skip"     // 本回合不动作
	ActionBet     ActionType = "bet"      // 下注（携带注金与目标倍数）
	ActionCashOut ActionType = "cash_out" // 手动兑现当前持仓
)

// Action 策略决策结果
type Action struct {
	Type          ActionType
	Stake         decimal.Decimal // bet 时的注金
	TargetCashout float64         // bet 时的目标兑现倍数（<= 0 表示手动）
	Reason        string          // 决策原因（日志/审计用）
}

// Skip 构造跳过动作
func Skip(reason string) Action { return Action{Type: ActionSkip, Reason: reason} }

// PlaceBet 构造下注动作
func PlaceBet(stake decimal.Decimal, target float64, reason string) Action {
	return Action{Type: ActionBet, Stake: stake, TargetCashout: target, Reason: reason}
}

// CashOut 构造兑现动作
func CashOut(reason string) Action { return Action{Type: ActionCashOut, Reason: reason} }

// Phase 策略状态机阶段：idle → armed → bet_placed → resolved → idle
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseArmed     Phase = "armed"
	PhaseBetPlaced Phase = "bet_placed"
	PhaseResolved  Phase = "resolved"
)

// Snapshot 策略状态快照（只读，展示与持久化恢复用）
type Snapshot struct {
	Name              string
	Policy            string
	Phase             Phase
	CurrentStake      decimal.Decimal
	ConsecutiveLosses int
	Wins              int
	Cooldown          int
	TotalProfit       decimal.Decimal
	PendingBetID      string
}

// Strategy 策略决策契约
// 所有变体实现同一接口；策略之间不共享可变状态，每个实例每回合被独立驱动
type Strategy interface {
	Name() string
	// Decide 在决策点（回合开始/进行中）被调用，返回本回合动作
	Decide(gs domain.GameState, sig hotstreak.Signal) Action
	// OnBetAccepted 引擎确认下注成功（armed → bet_placed）
	OnBetAccepted(bet *domain.Bet)
	// OnBetRejected 下注被拒（约束违规或 driver 失败），策略强制回 idle
	OnBetRejected(reason string)
	// OnSettled 回合结算（bet_placed → resolved → idle），更新连胜/连败计数
	OnSettled(bet *domain.Bet, round *domain.Round)
	// OnRoundStart 每回合开始时推进冷却计数
	OnRoundStart()
	// RestoreStreak 恢复时回填连败计数（不经过结算路径）
	RestoreStreak(consecutiveLosses int)
	// Snapshot 返回状态快照
	Snapshot() Snapshot
	// Reset 显式重置（手动停止/控制命令）
	Reset()
}

// Factory 按配置构造策略实例
type Factory func(cfg Config) (Strategy, error)

var (
	factories   = make(map[string]Factory)
	factoriesMu sync.RWMutex
)

// Register 注册策略变体（在各变体文件的 init() 中调用）
func Register(policy string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, exists := factories[policy]; exists {
		panic(fmt.Errorf("strategy policy %s already registered", policy))
	}
	factories[policy] = f
}

// New 按配置创建策略实例
func New(cfg Config) (Strategy, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	factoriesMu.RLock()
	f, ok := factories[cfg.Policy]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy policy: %s", cfg.Policy)
	}
	return f(cfg)
}

// Policies 返回已注册的变体名（诊断用）
func Policies() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}
