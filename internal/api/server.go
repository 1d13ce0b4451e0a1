// Package api 对外只读查询 + 控制命令入口
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/betbot/crasher/internal/bus"
	"github.com/betbot/crasher/internal/events"
	"github.com/betbot/crasher/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Config API 配置
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" json:"listen"` // 监听地址，例如 127.0.0.1:8787
}

// ApplyDefaults 应用默认配置
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8787"
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Enabled && c.Listen == "" {
		return fmt.Errorf("api listen 不能为空")
	}
	return nil
}

// CommandSink 控制命令的接收端（由引擎实现）
type CommandSink interface {
	Submit(events.ControlCommand) bool
}

// Server HTTP 服务
type Server struct {
	cfg    Config
	store  *store.Store
	bus    *bus.SnapshotBus
	engine CommandSink
	log    *logrus.Entry
}

func New(cfg Config, st *store.Store, b *bus.SnapshotBus, engine CommandSink) *Server {
	cfg.ApplyDefaults()
	return &Server{
		cfg:    cfg,
		store:  st,
		bus:    b,
		engine: engine,
		log:    logrus.WithField("component", "api"),
	}
}

// Router 构建路由
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/signal", s.handleSignal)
	api.GET("/strategies", s.handleStrategies)
	api.POST("/control", s.handleControl)

	sessions := api.Group("/sessions")
	sessions.GET("", s.handleSessionsList)
	sessionID := sessions.Group("/:sessionID")
	sessionID.GET("/summary", s.handleSessionSummary)
	sessionID.GET("/rounds", s.handleSessionRounds)
	sessionID.GET("/bets", s.handleSessionBets)

	return r
}

// Run 启动 HTTP 服务并随 ctx 优雅退出
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Listen, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("listen", s.cfg.Listen).Info("API 服务启动")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
