// Package recovery 负责进程重启后的会话恢复与回合回填
// 恢复策略：把库里最近的爆点序列当作指纹，在站点可见的历史中定位，
// 缺失的回合按插值时间戳补进库；对不上则视为会话已过期，另起新会话
package recovery

import (
	"context"
	"math"
	"time"

	"github.com/betbot/crasher/internal/domain"
	"github.com/betbot/crasher/internal/ports"
	"github.com/betbot/crasher/internal/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Config 恢复参数
type Config struct {
	Tolerance    float64 `yaml:"tolerance" json:"tolerance"`       // 倍数匹配容差
	MinMatch     int     `yaml:"minMatch" json:"minMatch"`         // 至少连续匹配多少条才认定对上
	MaxPattern   int     `yaml:"maxPattern" json:"maxPattern"`     // 指纹最大长度
	HistoryLimit int     `yaml:"historyLimit" json:"historyLimit"` // 向站点拉取的历史条数
}

// ApplyDefaults 填充默认值
func (c *Config) ApplyDefaults() {
	if c.Tolerance <= 0 {
		c.Tolerance = 0.01
	}
	if c.MinMatch <= 0 {
		c.MinMatch = 5
	}
	if c.MaxPattern <= 0 {
		c.MaxPattern = 20
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 100
	}
}

// Result 恢复结果
type Result struct {
	Session        domain.Session
	Resumed        bool      // 是否续用了旧会话
	Backfilled     int       // 回填的回合数
	UnknownBets    int       // 标记为 unknown 的挂起下注数
	Multipliers    []float64 // 未标记异常的爆点序列（时间升序），供 detector 回放
	TrailingLosses map[string]int
}

// Recoverer 会话恢复器
type Recoverer struct {
	store  *store.Store
	driver ports.Driver
	cfg    Config
	log    *logrus.Entry
}

func New(st *store.Store, drv ports.Driver, cfg Config) *Recoverer {
	cfg.ApplyDefaults()
	return &Recoverer{
		store:  st,
		driver: drv,
		cfg:    cfg,
		log:    logrus.WithField("component", "recovery"),
	}
}

// Recover 执行完整恢复流程，strategies 为需要恢复连败计数的策略名
func (r *Recoverer) Recover(ctx context.Context, strategies []string) (*Result, error) {
	now := time.Now().UTC()

	balance, err := r.driver.Balance(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "query balance")
	}
	history, err := r.driver.History(ctx, r.cfg.HistoryLimit)
	if err != nil {
		return nil, errors.Wrap(err, "fetch history")
	}

	last, err := r.store.LastSession(ctx)
	if err != nil {
		return nil, err
	}

	if last != nil && last.Active() {
		res, err := r.resume(ctx, last, history, balance, now, strategies)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, domain.ErrStaleSession) {
			return nil, err
		}
		// 旧会话对不上站点历史：按当前余额收尾，转入新会话
		r.log.WithField("session", last.ID).Warn("会话已过期，无法匹配站点历史")
		if err := r.store.EndSession(ctx, last.ID, now, balance); err != nil {
			return nil, err
		}
	}

	return r.fresh(ctx, history, balance, now)
}

// fresh 创建新会话，并把站点历史整体导入作为 detector 的初始窗口
func (r *Recoverer) fresh(ctx context.Context, history []float64, balance decimal.Decimal, now time.Time) (*Result, error) {
	sess := domain.Session{
		ID:           uuid.NewString(),
		StartedAt:    now,
		StartBalance: balance,
	}
	if err := r.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	if len(history) > 0 {
		start := now.Add(-time.Duration(len(history)) * 15 * time.Second)
		if err := r.store.BackfillRounds(ctx, sess.ID, history, start, now); err != nil {
			return nil, err
		}
	}
	r.log.WithFields(logrus.Fields{
		"session":  sess.ID,
		"imported": len(history),
	}).Info("创建新会话")
	return &Result{
		Session:        sess,
		Backfilled:     len(history),
		Multipliers:    append([]float64(nil), history...),
		TrailingLosses: map[string]int{},
	}, nil
}

// resume 续用活跃会话：匹配指纹、回填缺口、结算挂起下注、恢复连败计数
func (r *Recoverer) resume(ctx context.Context, sess *domain.Session, history []float64, balance decimal.Decimal, now time.Time, strategies []string) (*Result, error) {
	tail, err := r.store.SessionMultipliers(ctx, sess.ID, r.cfg.MaxPattern)
	if err != nil {
		return nil, err
	}

	missed, matched := r.matchTail(history, tail)
	if !matched && len(tail) >= r.cfg.MinMatch {
		return nil, domain.ErrStaleSession
	}

	res := &Result{Session: *sess, Resumed: true, TrailingLosses: map[string]int{}}

	if len(missed) > 0 {
		rounds, err := r.store.ListRounds(ctx, sess.ID, 1)
		if err != nil {
			return nil, err
		}
		start := now.Add(-time.Duration(len(missed)) * 15 * time.Second)
		if len(rounds) > 0 {
			start = rounds[0].StartedAt
		}
		if err := r.store.BackfillRounds(ctx, sess.ID, missed, start, now); err != nil {
			return nil, err
		}
		res.Backfilled = len(missed)
	}

	unknown, err := r.settlePending(ctx, sess.ID, now)
	if err != nil {
		return nil, err
	}
	res.UnknownBets = unknown

	for _, name := range strategies {
		losses, err := r.store.TrailingLosses(ctx, sess.ID, name)
		if err != nil {
			return nil, err
		}
		if losses > 0 {
			res.TrailingLosses[name] = losses
		}
	}

	res.Multipliers, err = r.store.ReplayMultipliers(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"session":    sess.ID,
		"backfilled": res.Backfilled,
		"unknown":    res.UnknownBets,
	}).Info("续用会话")
	return res, nil
}

// matchTail 在站点历史中定位库内指纹，返回指纹之后缺失的倍数序列
// 指纹为空（全新库）按匹配成功处理，missed 为空
func (r *Recoverer) matchTail(history, tail []float64) (missed []float64, matched bool) {
	if len(tail) == 0 {
		return nil, true
	}
	need := len(tail)
	if need > r.cfg.MinMatch {
		// 允许指纹只有尾部一段落在站点历史窗口内
		need = r.cfg.MinMatch
	}
	// 从最近的位置向前找，优先选择缺失最少的解释
	for end := len(history); end >= need; end-- {
		n := end
		if n > len(tail) {
			n = len(tail)
		}
		if r.segmentsMatch(history[end-n:end], tail[len(tail)-n:]) && n >= need {
			return append([]float64(nil), history[end:]...), true
		}
	}
	return nil, false
}

func (r *Recoverer) segmentsMatch(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > r.cfg.Tolerance {
			return false
		}
	}
	return true
}

// settlePending 结算挂起下注：回合轨迹还在就按轨迹结算，
// 轨迹缺失或有缺口则标记 unknown 并把回合标记为异常
func (r *Recoverer) settlePending(ctx context.Context, sessionID string, now time.Time) (int, error) {
	pending, err := r.store.PendingBets(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	unknown := 0
	for i := range pending {
		b := &pending[i]
		round, err := r.store.RoundWithEvents(ctx, b.RoundID)
		if err != nil {
			return unknown, err
		}
		if round == nil || !round.Settled() || len(round.FindGaps()) > 0 {
			if round != nil && len(round.FindGaps()) > 0 {
				if err := r.store.FlagRound(ctx, round.ID); err != nil {
					return unknown, err
				}
			}
			if err := r.store.ResolveBet(ctx, b.ID, domain.BetUnknown, decimal.Zero, now); err != nil {
				return unknown, err
			}
			unknown++
			continue
		}
		b.SettleAgainst(round, now)
		if err := r.store.ResolveBet(ctx, b.ID, b.Outcome, b.Payout, *b.ResolvedAt); err != nil {
			return unknown, err
		}
	}
	return unknown, nil
}
