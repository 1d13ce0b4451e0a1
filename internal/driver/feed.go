package driver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/betbot/crasher/internal/domain"
	"github.com/betbot/crasher/internal/events"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const maxReconnectAttempts = 5

// frame 事件流线格式
// type: multiplier | crash | balance
type frame struct {
	Type       string  `json:"type"`
	RoundID    string  `json:"roundId"`
	Seq        int64   `json:"seq"`
	Value      float64 `json:"value"`
	Multiplier float64 `json:"multiplier"`
	Bettors    int     `json:"bettors"`
	Balance    string  `json:"balance"`
	TS         int64   `json:"ts"` // unix 毫秒
}

// feed WebSocket 事件流
// 读循环把线格式翻译成 DriverEvent；断线时指数退避重连，
// 重连次数耗尽后关闭事件通道，引擎据此退出
type feed struct {
	cfg    Config
	token  string
	out    chan<- events.DriverEvent
	log    *logrus.Entry

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

func newFeed(cfg Config, token string, out chan<- events.DriverEvent) *feed {
	return &feed{
		cfg:   cfg,
		token: token,
		out:   out,
		log:   logrus.WithField("component", "driver.feed"),
		done:  make(chan struct{}),
	}
}

func (f *feed) start(ctx context.Context) error {
	if err := f.connect(ctx); err != nil {
		return err
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go f.run(loopCtx)
	return nil
}

func (f *feed) stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Lock()
	if f.conn != nil {
		_ = f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = f.conn.Close()
		f.conn = nil
	}
	f.mu.Unlock()
	select {
	case <-f.done:
	case <-time.After(5 * time.Second):
		f.log.Warn("事件流关闭超时")
	}
}

func (f *feed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: DefaultHandshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+f.token)

	conn, resp, err := dialer.DialContext(ctx, f.cfg.WSURL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return errors.Wrap(domain.ErrAuth, "feed dial")
		}
		return &domain.TransientError{Op: "feed_dial", Err: err}
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(DefaultPongWait))
	})
	_ = conn.SetReadDeadline(time.Now().Add(DefaultPongWait))

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	return nil
}

func (f *feed) run(ctx context.Context) {
	defer close(f.done)
	defer close(f.out)

	go f.pingLoop(ctx)

	attempts := 0
	for {
		f.mu.Lock()
		conn := f.conn
		f.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempts++
			if attempts > maxReconnectAttempts {
				f.log.WithError(err).Error("事件流断开，重连次数耗尽")
				return
			}
			backoff := time.Duration(attempts) * time.Second
			f.log.WithError(err).Warnf("事件流断开，%s 后第 %d 次重连", backoff, attempts)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if err := f.connect(ctx); err != nil {
				f.log.WithError(err).Warn("重连失败")
			}
			continue
		}
		attempts = 0
		f.dispatch(data)
	}
}

// dispatch 把一条线格式消息翻译成 DriverEvent 投递给引擎
// 通道满时丢弃并告警（引擎慢于事件流说明出了更大的问题）
func (f *feed) dispatch(data []byte) {
	var fr frame
	if err := json.Unmarshal(data, &fr); err != nil {
		f.log.WithError(err).Warn("丢弃无法解析的事件帧")
		return
	}
	at := unixMillis(fr.TS)

	var ev events.DriverEvent
	switch fr.Type {
	case "multiplier":
		ev = events.MultiplierObserved{Event: domain.MultiplierEvent{
			RoundID:    fr.RoundID,
			Sequence:   fr.Seq,
			Value:      fr.Value,
			ObservedAt: at,
		}}
	case "crash":
		ev = events.RoundSettled{
			RoundID:         fr.RoundID,
			CrashMultiplier: fr.Multiplier,
			BettorCount:     fr.Bettors,
			At:              at,
		}
	case "balance":
		bal, err := decimal.NewFromString(fr.Balance)
		if err != nil {
			f.log.WithError(err).Warn("丢弃无法解析的余额帧")
			return
		}
		ev = events.BalanceObserved{Balance: bal, At: at}
	default:
		return
	}

	select {
	case f.out <- ev:
	default:
		f.log.WithField("type", fr.Type).Warn("事件通道已满，丢弃事件")
	}
}

func (f *feed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.Lock()
			conn := f.conn
			f.mu.Unlock()
			if conn == nil {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.log.WithError(err).Warn("ping 失败")
			}
		}
	}
}

func unixMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}

func intString(v int) string { return strconv.Itoa(v) }
