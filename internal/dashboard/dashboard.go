// Package dashboard 终端仪表板
// 只消费 bus 上的引擎快照，不触碰引擎内部状态；慢渲染不会阻塞引擎
package dashboard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/betbot/crasher/internal/bus"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

var log = logrus.WithField("component", "dashboard")

// Config 仪表板配置
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	LogDir  string `yaml:"logDir" json:"logDir"` // TUI 模式下日志重定向目录
}

// ApplyDefaults 应用默认配置
func (c *Config) ApplyDefaults() {
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
}

// Dashboard 终端仪表板
type Dashboard struct {
	cfg     Config
	bus     *bus.SnapshotBus
	program *tea.Program
	logFile *os.File
}

func New(cfg Config, b *bus.SnapshotBus) *Dashboard {
	cfg.ApplyDefaults()
	return &Dashboard{cfg: cfg, bus: b}
}

// redirectLogs 把 logrus 输出改写到文件，避免日志行打乱 TUI
func (d *Dashboard) redirectLogs() {
	if err := os.MkdirAll(d.cfg.LogDir, 0755); err != nil {
		return
	}
	path := filepath.Join(d.cfg.LogDir, "dashboard.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return
	}
	d.logFile = file
	logrus.SetOutput(file)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
	})
}

// Run 启动仪表板并阻塞到 ctx 取消或用户退出
// 非终端环境（管道、CI）下直接返回，不报错
func (d *Dashboard) Run(ctx context.Context) error {
	if !d.cfg.Enabled {
		return nil
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		log.Info("stdout 不是终端，跳过仪表板")
		return nil
	}

	d.redirectLogs()
	defer func() {
		if d.logFile != nil {
			_ = d.logFile.Close()
		}
	}()

	d.program = tea.NewProgram(newModel(d.bus), tea.WithAltScreen())

	go func() {
		<-ctx.Done()
		d.program.Quit()
	}()

	// 给主程其余组件留出启动时间，避免首帧空白
	time.Sleep(100 * time.Millisecond)
	if _, err := d.program.Run(); err != nil {
		return fmt.Errorf("仪表板运行错误: %w", err)
	}
	return nil
}
