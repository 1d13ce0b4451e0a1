package driver

import (
	"fmt"
	"time"
)

// 默认参数
const (
	DefaultTimeout          = 15 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPongWait         = 60 * time.Second
	DefaultEventBuffer      = 256
)

// Config 站点桥接配置
type Config struct {
	BaseURL      string        `yaml:"baseUrl" json:"baseUrl"`           // 桥接服务 HTTP 地址
	WSURL        string        `yaml:"wsUrl" json:"wsUrl"`               // 实时事件流 WebSocket 地址
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`           // 单次命令超时
	PingInterval time.Duration `yaml:"pingInterval" json:"pingInterval"` // 心跳间隔
	EventBuffer  int           `yaml:"eventBuffer" json:"eventBuffer"`   // 事件通道容量
}

// ApplyDefaults 应用默认配置
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("driver baseUrl 不能为空")
	}
	if c.WSURL == "" {
		return fmt.Errorf("driver wsUrl 不能为空")
	}
	return nil
}
