// Package config 全局配置加载
// 优先级：环境变量 > YAML 配置文件 > 内置默认值
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/betbot/crasher/internal/api"
	"github.com/betbot/crasher/internal/dashboard"
	"github.com/betbot/crasher/internal/driver"
	"github.com/betbot/crasher/internal/engine"
	"github.com/betbot/crasher/internal/hotstreak"
	"github.com/betbot/crasher/internal/recovery"
	"github.com/betbot/crasher/internal/strategies"
	"github.com/betbot/crasher/pkg/logger"
	"gopkg.in/yaml.v3"
)

var (
	globalConfig *Config
	configPath   = "config.yaml"
	mu           sync.RWMutex
)

// Config 应用总配置
type Config struct {
	DBPath string `yaml:"dbPath" json:"dbPath"` // SQLite 数据库路径

	Secrets SecretsConfig `yaml:"secrets" json:"secrets"`

	Log        logger.Config       `yaml:"log" json:"log"`
	Driver     driver.Config       `yaml:"driver" json:"driver"`
	Engine     engine.Config       `yaml:"engine" json:"engine"`
	Hotstreak  hotstreak.Config    `yaml:"hotstreak" json:"hotstreak"`
	Recovery   recovery.Config     `yaml:"recovery" json:"recovery"`
	API        api.Config          `yaml:"api" json:"api"`
	Dashboard  dashboard.Config    `yaml:"dashboard" json:"dashboard"`
	Strategies []strategies.Config `yaml:"strategies" json:"strategies"`
}

// SecretsConfig 凭据库配置
// 加密密钥只从环境变量读取，不落 YAML
type SecretsConfig struct {
	Path string `yaml:"path" json:"path"`
	Key  string `yaml:"-" json:"-"`
}

// SetConfigPath 设置配置文件路径（需在 Load 之前调用）
func SetConfigPath(path string) {
	mu.Lock()
	defer mu.Unlock()
	if strings.TrimSpace(path) != "" {
		configPath = path
	}
}

// GetConfigPath 返回当前配置文件路径
func GetConfigPath() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// Load 加载配置并设为全局实例
func Load() (*Config, error) {
	return LoadFromFile(GetConfigPath())
}

// LoadFromFile 从指定文件加载配置
// 文件不存在时按全默认值启动（站点地址仍需环境变量提供）
func LoadFromFile(filePath string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(filePath)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件 %s 失败: %w", filePath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", filePath, err)
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	globalConfig = cfg
	mu.Unlock()
	return cfg, nil
}

// Get 返回全局配置实例（Load 之前为 nil）
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// applyEnv 环境变量覆盖
func (c *Config) applyEnv() {
	if v := os.Getenv("CRASHER_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("CRASHER_SECRETS_PATH"); v != "" {
		c.Secrets.Path = v
	}
	if v := os.Getenv("CRASHER_SECRETS_KEY"); v != "" {
		c.Secrets.Key = v
	}
	if v := os.Getenv("CRASHER_BASE_URL"); v != "" {
		c.Driver.BaseURL = v
	}
	if v := os.Getenv("CRASHER_WS_URL"); v != "" {
		c.Driver.WSURL = v
	}
	if v := os.Getenv("CRASHER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CRASHER_API_LISTEN"); v != "" {
		c.API.Listen = v
	}
}

// ApplyDefaults 应用默认配置（逐子模块委托）
func (c *Config) ApplyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "crasher.db"
	}
	if c.Secrets.Path == "" {
		c.Secrets.Path = "secrets"
	}
	c.Log.ApplyDefaults()
	c.Driver.ApplyDefaults()
	c.Engine.ApplyDefaults()
	c.Hotstreak.ApplyDefaults()
	c.Recovery.ApplyDefaults()
	c.API.ApplyDefaults()
	c.Dashboard.ApplyDefaults()

	if len(c.Strategies) == 0 {
		// 没配策略时给一个保守的 fixed 策略，避免空跑
		c.Strategies = []strategies.Config{{Name: "steady", Policy: "fixed", Enabled: true}}
	}
	for i := range c.Strategies {
		c.Strategies[i].ApplyDefaults()
	}
}

// Validate 校验配置（逐子模块委托）
// driver 的地址校验延后到启动阶段：站点地址可能由 secretstore 凭据补齐
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.Hotstreak.Validate(); err != nil {
		return err
	}
	if err := c.API.Validate(); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(c.Strategies))
	for i := range c.Strategies {
		s := &c.Strategies[i]
		if err := s.Validate(); err != nil {
			return fmt.Errorf("策略 %s: %w", s.Name, err)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("策略名重复: %s", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

// EnabledStrategies 返回启用的策略配置
func (c *Config) EnabledStrategies() []strategies.Config {
	out := make([]strategies.Config, 0, len(c.Strategies))
	for _, s := range c.Strategies {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}
