package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// 默认参数
const (
	DefaultRecentWindow    = 50
	DefaultKeepaliveRounds = 20
	DefaultRetryBackoff    = 500 * time.Millisecond
	DefaultCommandBuffer   = 16
)

// Config 引擎配置
type Config struct {
	RecentWindow    int             `yaml:"recentWindow" json:"recentWindow"`       // 传给策略的最近爆点数
	KeepaliveRounds int             `yaml:"keepaliveRounds" json:"keepaliveRounds"` // 每 N 回合向站点发一次保活（0 = 关闭）
	RetryBackoff    time.Duration   `yaml:"retryBackoff" json:"retryBackoff"`       // 暂时性失败的重试退避
	MaxSessionLoss  decimal.Decimal `yaml:"maxSessionLoss" json:"maxSessionLoss"`   // 会话累计亏损上限，达到即停机（0 = 关闭）
	CommandBuffer   int             `yaml:"commandBuffer" json:"commandBuffer"`     // 控制命令队列容量
	Autopilot       bool            `yaml:"autopilot" json:"autopilot"`             // 启动时是否自动驾驶
}

// ApplyDefaults 应用默认配置
func (c *Config) ApplyDefaults() {
	if c.RecentWindow <= 0 {
		c.RecentWindow = DefaultRecentWindow
	}
	if c.KeepaliveRounds < 0 {
		c.KeepaliveRounds = DefaultKeepaliveRounds
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.CommandBuffer <= 0 {
		c.CommandBuffer = DefaultCommandBuffer
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.MaxSessionLoss.IsNegative() {
		return fmt.Errorf("maxSessionLoss 不能为负数: %s", c.MaxSessionLoss)
	}
	return nil
}
