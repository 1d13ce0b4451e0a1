package events

import (
	"time"

	"github.com/betbot/crasher/internal/domain"
	"github.com/shopspring/decimal"
)

// DriverEvent driver 推送给引擎的事件（封闭集合）
type DriverEvent interface {
	driverEvent()
	EventTime() time.Time
}

// MultiplierObserved 实时倍数事件
type MultiplierObserved struct {
	Event domain.MultiplierEvent
}

func (MultiplierObserved) driverEvent() {}

func (e MultiplierObserved) EventTime() time.Time { return e.Event.ObservedAt }

// RoundSettled 回合结算事件（driver 报告爆点）
type RoundSettled struct {
	RoundID         string
	CrashMultiplier float64
	BettorCount     int // 本回合参与人数（页面可见时 > 0）
	At              time.Time
}

func (RoundSettled) driverEvent() {}

func (e RoundSettled) EventTime() time.Time { return e.At }

// BalanceObserved 余额采样事件
type BalanceObserved struct {
	Balance decimal.Decimal
	At      time.Time
}

func (BalanceObserved) driverEvent() {}

func (e BalanceObserved) EventTime() time.Time { return e.At }

// ControlAction 前端控制命令动作
type ControlAction string

const (
	ControlPause            ControlAction = "pause"             // 暂停下注（事件继续采集）
	ControlResume           ControlAction = "resume"            // 恢复下注
	ControlStop             ControlAction = "stop"              // 结算完当前回合后停机
	ControlSetAutopilot     ControlAction = "set_autopilot"     // 切换自动驾驶
	ControlActivateStrategy ControlAction = "activate_strategy" // 手动激活某个策略
	ControlCashOut          ControlAction = "cash_out"          // 手动兑现某个策略的持仓
	ControlResetStrategy    ControlAction = "reset_strategy"    // 重置某个策略的状态
	ControlUpdateConfig     ControlAction = "update_config"     // 热更新策略配置
)

// ControlCommand 前端发往引擎控制队列的命令
type ControlCommand struct {
	Action   ControlAction
	Strategy string // activate/reset/update 目标策略名
	Enabled  bool   // set_autopilot 取值
	Raw      []byte // update_config 的原始 YAML
	At       time.Time
}
