// Package ports 定义引擎与外部世界之间的接口
// driver 与前端的具体实现都依赖本包，本包不依赖它们
package ports

import (
	"context"
	"time"

	"github.com/betbot/crasher/internal/events"
	"github.com/shopspring/decimal"
)

// Credentials 登录凭据（由 secretstore 提供，不落普通配置文件）
type Credentials struct {
	SiteURL  string
	Username string
	Password string
}

// BetRequest 下注请求
type BetRequest struct {
	RoundID       string
	Strategy      string
	Stake         decimal.Decimal
	TargetCashout float64 // <= 0 表示手动兑现
}

// BetAck 站点接受下注的回执
type BetAck struct {
	BetID      string
	AcceptedAt time.Time
}

// CashOutAck 兑现回执
type CashOutAck struct {
	Multiplier float64
	Payout     decimal.Decimal
	At         time.Time
}

// Driver 游戏站点桥接接口
// 命令方法可能返回 domain 错误分类（ErrAuth / TransientError 等），
// 引擎据此决定重试或停机；Events 通道在 Close 后关闭
type Driver interface {
	// Connect 登录并建立实时事件流
	Connect(ctx context.Context, creds Credentials) error
	// Events 返回驱动事件通道（倍数、回合结算、余额）
	Events() <-chan events.DriverEvent
	// PlaceBet 在当前回合下注
	PlaceBet(ctx context.Context, req BetRequest) (BetAck, error)
	// CashOut 手动兑现一笔进行中的下注
	CashOut(ctx context.Context, betID string) (CashOutAck, error)
	// History 拉取站点可见的历史爆点倍数（时间升序，最多 limit 条）
	History(ctx context.Context, limit int) ([]float64, error)
	// Balance 查询当前余额
	Balance(ctx context.Context) (decimal.Decimal, error)
	// Keepalive 向站点发送保活动作
	Keepalive(ctx context.Context) error
	Close() error
}
