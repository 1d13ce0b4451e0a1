// Package driver 游戏站点桥接
// 命令走 HTTP（登录、下注、兑现、历史、保活），事件走 WebSocket 实时流。
// 所有错误在这里映射成 domain 的分类，引擎只认分类不认状态码
package driver

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/betbot/crasher/internal/domain"
	"github.com/betbot/crasher/internal/events"
	"github.com/betbot/crasher/internal/ports"
	"github.com/betbot/crasher/pkg/ratelimit"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Client ports.Driver 的 HTTP+WebSocket 实现
type Client struct {
	cfg    Config
	http   *resty.Client
	limits *ratelimit.RateLimitManager
	log    *logrus.Entry

	feed   *feed
	events chan events.DriverEvent

	mu    sync.Mutex
	token string
}

var _ ports.Driver = (*Client)(nil)

// New 创建桥接客户端
// 重试语义由引擎负责，这里不做 resty 层的自动重试，避免同一笔命令被下发两次
func New(cfg Config) *Client {
	cfg.ApplyDefaults()
	httpClient := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "crasher-bot/1.0")
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		limits: ratelimit.NewRateLimitManager(),
		log:    logrus.WithField("component", "driver"),
		events: make(chan events.DriverEvent, cfg.EventBuffer),
	}
}

type loginResponse struct {
	Token string `json:"token"`
}

// Connect 登录并建立实时事件流
func (c *Client) Connect(ctx context.Context, creds ports.Credentials) error {
	if creds.SiteURL != "" {
		c.http.SetBaseURL(strings.TrimSuffix(creds.SiteURL, "/"))
	}
	var out loginResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"username": creds.Username, "password": creds.Password}).
		SetResult(&out).
		Post("/api/login")
	if err := mapError("login", resp, err); err != nil {
		return err
	}
	c.mu.Lock()
	c.token = out.Token
	c.mu.Unlock()
	c.http.SetAuthToken(out.Token)

	c.feed = newFeed(c.cfg, out.Token, c.events)
	if err := c.feed.start(ctx); err != nil {
		return err
	}
	c.log.Info("已连接站点并建立事件流")
	return nil
}

// Events 返回驱动事件通道，事件流断开且无法重连后关闭
func (c *Client) Events() <-chan events.DriverEvent { return c.events }

type betResponse struct {
	BetID      string `json:"betId"`
	AcceptedAt int64  `json:"acceptedAt"` // unix 毫秒
}

// PlaceBet 在当前回合下注
// strategy 随请求一起下发：站点按 roundId+strategy 去重，瞬态失败后的重发不会变成第二笔
func (c *Client) PlaceBet(ctx context.Context, req ports.BetRequest) (ports.BetAck, error) {
	if err := c.limits.Wait(ctx, "bet:post"); err != nil {
		return ports.BetAck{}, err
	}
	var out betResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"roundId":  req.RoundID,
			"strategy": req.Strategy,
			"stake":    req.Stake.String(),
			"target":   req.TargetCashout,
		}).
		SetResult(&out).
		Post("/api/bets")
	if err := mapError("place_bet", resp, err); err != nil {
		return ports.BetAck{}, err
	}
	return ports.BetAck{BetID: out.BetID, AcceptedAt: unixMillis(out.AcceptedAt)}, nil
}

type cashOutResponse struct {
	Multiplier float64 `json:"multiplier"`
	Payout     string  `json:"payout"`
	At         int64   `json:"at"`
}

// CashOut 手动兑现
func (c *Client) CashOut(ctx context.Context, betID string) (ports.CashOutAck, error) {
	if err := c.limits.Wait(ctx, "cashout:post"); err != nil {
		return ports.CashOutAck{}, err
	}
	var out cashOutResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Post("/api/bets/" + betID + "/cashout")
	if err := mapError("cash_out", resp, err); err != nil {
		return ports.CashOutAck{}, err
	}
	payout, err := decimal.NewFromString(out.Payout)
	if err != nil {
		return ports.CashOutAck{}, errors.Wrap(err, "parse cashout payout")
	}
	return ports.CashOutAck{Multiplier: out.Multiplier, Payout: payout, At: unixMillis(out.At)}, nil
}

type historyResponse struct {
	Multipliers []float64 `json:"multipliers"` // 时间升序
}

// History 拉取站点可见的历史爆点序列
func (c *Client) History(ctx context.Context, limit int) ([]float64, error) {
	if err := c.limits.Wait(ctx, "history:get"); err != nil {
		return nil, err
	}
	var out historyResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", intString(limit)).
		SetResult(&out).
		Get("/api/history")
	if err := mapError("history", resp, err); err != nil {
		return nil, err
	}
	return out.Multipliers, nil
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

// Balance 查询当前余额
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	if err := c.limits.Wait(ctx, "balance:get"); err != nil {
		return decimal.Zero, err
	}
	var out balanceResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/balance")
	if err := mapError("balance", resp, err); err != nil {
		return decimal.Zero, err
	}
	bal, err := decimal.NewFromString(out.Balance)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse balance")
	}
	return bal, nil
}

// Keepalive 发送保活动作，避免站点把空闲会话踢下线
func (c *Client) Keepalive(ctx context.Context) error {
	if err := c.limits.Wait(ctx, "keepalive:post"); err != nil {
		return err
	}
	resp, err := c.http.R().SetContext(ctx).Post("/api/keepalive")
	return mapError("keepalive", resp, err)
}

// Close 关闭事件流与连接
func (c *Client) Close() error {
	if c.feed != nil {
		c.feed.stop()
	}
	return nil
}

// mapError 把传输层结果映射成 domain 错误分类
func mapError(op string, resp *resty.Response, err error) error {
	if err != nil {
		// 网络层错误（超时、连接被拒）按瞬态处理，引擎会退避重试一次
		return &domain.TransientError{Op: op, Err: err}
	}
	if resp.IsSuccess() {
		return nil
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errors.Wrap(domain.ErrAuth, op)
	case code == http.StatusConflict && op == "place_bet":
		// 站点侧拒单（回合已起飞、重复下注）
		return &domain.ConstraintViolation{Strategy: "", Reason: strings.TrimSpace(string(resp.Body()))}
	case code == http.StatusGone:
		return errors.Wrap(domain.ErrStaleSession, op)
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return &domain.TransientError{Op: op, Err: errors.Errorf("http %d: %s", code, resp.Status())}
	default:
		return errors.Errorf("%s: http %d: %s", op, code, string(resp.Body()))
	}
}
