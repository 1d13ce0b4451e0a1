package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/crasher/internal/api"
	"github.com/betbot/crasher/internal/bus"
	"github.com/betbot/crasher/internal/dashboard"
	"github.com/betbot/crasher/internal/driver"
	"github.com/betbot/crasher/internal/engine"
	"github.com/betbot/crasher/internal/events"
	"github.com/betbot/crasher/internal/hotstreak"
	"github.com/betbot/crasher/internal/ports"
	"github.com/betbot/crasher/internal/recovery"
	"github.com/betbot/crasher/internal/store"
	"github.com/betbot/crasher/internal/strategies"
	"github.com/betbot/crasher/pkg/config"
	"github.com/betbot/crasher/pkg/logger"
	"github.com/betbot/crasher/pkg/secretstore"
	"github.com/betbot/crasher/pkg/shutdown"
	"github.com/betbot/crasher/pkg/syncgroup"
)

// 停机信号后留给引擎结算当前回合的时间
const drainTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "配置文件路径（.yaml）")
	headless := flag.Bool("headless", false, "不启动终端仪表板")
	flag.Parse()

	// .env 是可选的本地开发便利
	_ = godotenv.Load()

	if *configPath != "" {
		config.SetConfigPath(*configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "加载配置失败:", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Log); err != nil {
		fmt.Fprintln(os.Stderr, "初始化日志失败:", err)
		os.Exit(1)
	}
	log := logrus.WithField("component", "main")
	log.WithField("config", config.GetConfigPath()).Info("crasher 启动")

	if err := run(cfg, log, *headless); err != nil {
		log.WithError(err).Error("crasher 退出")
		os.Exit(1)
	}
	log.Info("crasher 正常退出")
}

func run(cfg *config.Config, log *logrus.Entry, headless bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	creds, err := loadCredentials(cfg)
	if err != nil {
		return err
	}
	if cfg.Driver.BaseURL == "" {
		cfg.Driver.BaseURL = creds.SiteURL
	}
	if err := cfg.Driver.Validate(); err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("打开数据库失败: %w", err)
	}

	drv := driver.New(cfg.Driver)
	if err := drv.Connect(ctx, creds); err != nil {
		_ = st.Close()
		return fmt.Errorf("连接站点失败: %w", err)
	}

	mgr := shutdown.NewManager()
	mgr.OnShutdown(func(ctx context.Context, _ *sync.WaitGroup) {
		if err := drv.Close(); err != nil {
			log.WithError(err).Warn("关闭 driver 失败")
		}
	})
	mgr.OnShutdown(func(ctx context.Context, _ *sync.WaitGroup) {
		if err := st.Close(); err != nil {
			log.WithError(err).Warn("关闭数据库失败")
		}
	})

	strats, names, err := buildStrategies(cfg)
	if err != nil {
		return err
	}
	log.WithField("strategies", names).Info("策略已装载")

	// 会话恢复：续用旧会话或另起新会话，并补齐离线期间的回合
	rec := recovery.New(st, drv, cfg.Recovery)
	res, err := rec.Recover(ctx, names)
	if err != nil {
		return fmt.Errorf("会话恢复失败: %w", err)
	}
	balance, err := drv.Balance(ctx)
	if err != nil {
		return fmt.Errorf("查询余额失败: %w", err)
	}
	log.WithFields(logrus.Fields{
		"session":    res.Session.ID,
		"resumed":    res.Resumed,
		"backfilled": res.Backfilled,
		"unknown":    res.UnknownBets,
		"balance":    balance.String(),
	}).Info("会话就绪")

	b := bus.New()
	eng := engine.New(cfg.Engine, st, drv, hotstreak.New(cfg.Hotstreak), strats, b)
	eng.Seed(res.Session, balance, res.Multipliers, res.TrailingLosses)

	group := syncgroup.NewSyncGroup()
	group.Add(func() {
		if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("引擎退出")
		}
		// 引擎结束后整个进程没有存在意义，带动其余组件退出
		cancel()
	})
	if cfg.API.Enabled {
		srv := api.New(cfg.API, st, b, eng)
		group.Add(func() {
			if err := srv.Run(ctx); err != nil {
				log.WithError(err).Error("API 服务退出")
			}
		})
	}
	if !headless && cfg.Dashboard.Enabled {
		dash := dashboard.New(cfg.Dashboard, b)
		group.Add(func() {
			if err := dash.Run(ctx); err != nil {
				log.WithError(err).Error("仪表板退出")
			}
		})
	}
	group.Run()

	// 第一次信号：提交 stop 命令，让引擎结算完当前回合再停；
	// 第二次信号或超时：取消 ctx 硬停
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Info("收到停机信号，等待当前回合结算")
			if !eng.Submit(events.ControlCommand{Action: events.ControlStop, At: time.Now().UTC()}) {
				cancel()
				return
			}
			select {
			case <-ctx.Done():
			case <-sigCh:
				log.Warn("再次收到信号，强制退出")
				cancel()
			case <-time.After(drainTimeout):
				log.Warn("停机等待超时，强制退出")
				cancel()
			}
		}
	}()

	group.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	mgr.Shutdown(shutdownCtx)
	return nil
}

// loadCredentials 凭据优先从加密 secretstore 读取，环境变量兜底
func loadCredentials(cfg *config.Config) (ports.Credentials, error) {
	if key, err := secretstore.ParseKey(cfg.Secrets.Key); err == nil && key != nil {
		ss, err := secretstore.Open(secretstore.OpenOptions{
			Path:          cfg.Secrets.Path,
			EncryptionKey: key,
			ReadOnly:      true,
		})
		if err != nil {
			return ports.Credentials{}, fmt.Errorf("打开 secretstore 失败: %w", err)
		}
		defer ss.Close()
		creds, err := ss.SiteCredentials()
		if err != nil {
			return ports.Credentials{}, err
		}
		return ports.Credentials{
			SiteURL:  creds.SiteURL,
			Username: creds.Username,
			Password: creds.Password,
		}, nil
	}

	creds := ports.Credentials{
		SiteURL:  os.Getenv("CRASHER_SITE_URL"),
		Username: os.Getenv("CRASHER_USERNAME"),
		Password: os.Getenv("CRASHER_PASSWORD"),
	}
	if creds.Username == "" || creds.Password == "" {
		return creds, fmt.Errorf("缺少登录凭据：配置 CRASHER_SECRETS_KEY 或 CRASHER_USERNAME/CRASHER_PASSWORD")
	}
	if creds.SiteURL == "" {
		creds.SiteURL = cfg.Driver.BaseURL
	}
	return creds, nil
}

func buildStrategies(cfg *config.Config) ([]strategies.Strategy, []string, error) {
	enabled := cfg.EnabledStrategies()
	if len(enabled) == 0 {
		return nil, nil, fmt.Errorf("没有启用任何策略")
	}
	strats := make([]strategies.Strategy, 0, len(enabled))
	names := make([]string, 0, len(enabled))
	for _, sc := range enabled {
		s, err := strategies.New(sc)
		if err != nil {
			return nil, nil, fmt.Errorf("创建策略 %s 失败: %w", sc.Name, err)
		}
		strats = append(strats, s)
		names = append(names, s.Name())
	}
	return strats, names, nil
}
