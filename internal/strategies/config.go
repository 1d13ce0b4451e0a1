package strategies

import (
	"fmt"
)

// 默认参数（来自原始参数调优，可整体用配置覆盖）
const (
	DefaultAutoCashout          = 2.0
	DefaultBaseStake            = 10.0
	DefaultStakeMultiplier      = 2.0
	DefaultMaxConsecutiveLosses = 6
	DefaultTriggerThreshold     = 2.0
	DefaultTriggerCount         = 3
	DefaultConfirmThreshold     = 2.0
	DefaultConfirmCount         = 3
	DefaultConfirmWindow        = 5
	DefaultMonitorRounds        = 10
	DefaultLossCheckWindow      = 10
	DefaultCooldownRounds       = 3
)

// Config 策略配置（所有变体共用一张表，按 Policy 取各自关心的字段）
type Config struct {
	Name    string `yaml:"name" json:"name"`
	Policy  string `yaml:"policy" json:"policy"` // fixed | martingale | signal
	Enabled bool   `yaml:"enabled" json:"enabled"`

	BaseStake     float64 `yaml:"baseStake" json:"baseStake"`         // 基础注金
	AutoCashout   float64 `yaml:"autoCashout" json:"autoCashout"`     // 兑现目标倍数
	ManualCashout bool    `yaml:"manualCashout" json:"manualCashout"` // 手动兑现：下单不带站点目标，实时倍数到达目标时由引擎下发兑现命令
	MaxStake      float64 `yaml:"maxStake" json:"maxStake"`           // 注金上限（martingale 封顶）

	// 入场条件（fixed / martingale）：最近 TriggerCount 个爆点全部低于 TriggerThreshold
	TriggerThreshold float64 `yaml:"triggerThreshold" json:"triggerThreshold"`
	TriggerCount     int     `yaml:"triggerCount" json:"triggerCount"`

	// 注金倍增（martingale）
	StakeMultiplier float64 `yaml:"stakeMultiplier" json:"stakeMultiplier"`

	// 止损/止盈
	MaxConsecutiveLosses int `yaml:"maxConsecutiveLosses" json:"maxConsecutiveLosses"`
	MaxLossesInWindow    int `yaml:"maxLossesInWindow" json:"maxLossesInWindow"` // 最近 LossCheckWindow 笔中的最大败场（0 = 关闭）
	LossCheckWindow      int `yaml:"lossCheckWindow" json:"lossCheckWindow"`
	StopProfitWins       int `yaml:"stopProfitWins" json:"stopProfitWins"` // 赢满 N 场后收手（0 = 关闭）
	CooldownRounds       int `yaml:"cooldownRounds" json:"cooldownRounds"` // 停止后冷却回合数

	// 信号门控（signal）
	SignalTarget         string  `yaml:"signalTarget" json:"signalTarget"` // hot | cold
	MinConfidence        float64 `yaml:"minConfidence" json:"minConfidence"`
	ActivateOnStrong     bool    `yaml:"activateOnStrongStreak" json:"activateOnStrongStreak"`
	ActivateOnWeak       bool    `yaml:"activateOnWeakStreak" json:"activateOnWeakStreak"`
	ActivateOnPatterns   []string `yaml:"activateOnPatterns" json:"activateOnPatterns"` // pre_streak / high_stddev / rule_of_17 / possible_chain / dead_ass_chain
	ConfirmThreshold     float64 `yaml:"confirmThreshold" json:"confirmThreshold"`      // 确认窗口的高倍数阈值
	ConfirmCount         int     `yaml:"confirmCount" json:"confirmCount"`              // 需要 K 个
	ConfirmWindow        int     `yaml:"confirmWindow" json:"confirmWindow"`            // 最近 N 个
	MonitorRounds        int     `yaml:"monitorRounds" json:"monitorRounds"`            // 监控窗口上限
}

// ApplyDefaults 应用默认配置
func (c *Config) ApplyDefaults() {
	if c.Policy == "" {
		c.Policy = "fixed"
	}
	if c.Name == "" {
		c.Name = c.Policy
	}
	if c.BaseStake <= 0 {
		c.BaseStake = DefaultBaseStake
	}
	if c.AutoCashout <= 0 {
		c.AutoCashout = DefaultAutoCashout
	}
	if c.StakeMultiplier <= 0 {
		c.StakeMultiplier = DefaultStakeMultiplier
	}
	if c.MaxConsecutiveLosses <= 0 {
		c.MaxConsecutiveLosses = DefaultMaxConsecutiveLosses
	}
	if c.TriggerThreshold <= 0 {
		c.TriggerThreshold = DefaultTriggerThreshold
	}
	if c.TriggerCount <= 0 {
		c.TriggerCount = DefaultTriggerCount
	}
	if c.LossCheckWindow <= 0 {
		c.LossCheckWindow = DefaultLossCheckWindow
	}
	if c.ConfirmThreshold <= 0 {
		c.ConfirmThreshold = DefaultConfirmThreshold
	}
	if c.ConfirmCount <= 0 {
		c.ConfirmCount = DefaultConfirmCount
	}
	if c.ConfirmWindow <= 0 {
		c.ConfirmWindow = DefaultConfirmWindow
	}
	if c.MonitorRounds <= 0 {
		c.MonitorRounds = DefaultMonitorRounds
	}
	if c.CooldownRounds <= 0 {
		c.CooldownRounds = DefaultCooldownRounds
	}
	if c.SignalTarget == "" {
		c.SignalTarget = "hot"
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("策略名不能为空")
	}
	if c.AutoCashout < 1.0 {
		return fmt.Errorf("autoCashout 必须 >= 1.0，实际为 %.2f", c.AutoCashout)
	}
	if c.BaseStake <= 0 {
		return fmt.Errorf("baseStake 必须 > 0，实际为 %.2f", c.BaseStake)
	}
	if c.MaxStake > 0 && c.MaxStake < c.BaseStake {
		return fmt.Errorf("maxStake (%.2f) 不能小于 baseStake (%.2f)", c.MaxStake, c.BaseStake)
	}
	if c.ConfirmCount > c.ConfirmWindow {
		return fmt.Errorf("confirmCount (%d) 不能大于 confirmWindow (%d)", c.ConfirmCount, c.ConfirmWindow)
	}
	switch c.SignalTarget {
	case "hot", "cold":
	default:
		return fmt.Errorf("无效的 signalTarget: %s", c.SignalTarget)
	}
	switch c.Policy {
	case "fixed", "martingale", "signal":
	default:
		return fmt.Errorf("无效的 policy: %s", c.Policy)
	}
	return nil
}
