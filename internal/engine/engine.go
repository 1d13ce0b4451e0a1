// Package engine 引擎控制回路
// 单 goroutine 串行分发 driver 事件与控制命令，所有可变状态只在这条回路上
// 被触碰；策略决策、下注命令、落库都由它按回合状态机的顺序驱动
package engine

import (
	"context"
	"time"

	"github.com/betbot/crasher/internal/domain"
	"github.com/betbot/crasher/internal/events"
	"github.com/betbot/crasher/internal/hotstreak"
	"github.com/betbot/crasher/internal/ports"
	"github.com/betbot/crasher/internal/store"
	"github.com/betbot/crasher/internal/strategies"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Engine 引擎
type Engine struct {
	cfg      Config
	store    *store.Store
	driver   ports.Driver
	detector *hotstreak.Detector
	strats   []strategies.Strategy
	sink     ports.SnapshotSink
	commands chan events.ControlCommand
	log      *logrus.Entry

	session    domain.Session
	phase      domain.RoundPhase
	round      *domain.Round
	roundIndex int64
	balance    decimal.Decimal
	recent     []float64
	signal     hotstreak.Signal

	autopilot  bool
	paused     bool
	stopping   bool
	halted     bool
	haltReason string

	sessionProfit decimal.Decimal
	pending       map[string]*domain.Bet // 策略名 → 未结算下注（每策略至多一笔）
	placedKeys    map[string]struct{}    // 幂等键 round_id/strategy，换回合清空
	keepaliveIn   int
}

// New 创建引擎。sink 可以为 nil（无前端）。
func New(cfg Config, st *store.Store, drv ports.Driver, det *hotstreak.Detector, strats []strategies.Strategy, sink ports.SnapshotSink) *Engine {
	cfg.ApplyDefaults()
	return &Engine{
		cfg:         cfg,
		store:       st,
		driver:      drv,
		detector:    det,
		strats:      strats,
		sink:        sink,
		commands:    make(chan events.ControlCommand, cfg.CommandBuffer),
		log:         logrus.WithField("component", "engine"),
		phase:       domain.PhaseAwaitingRoundStart,
		autopilot:   cfg.Autopilot,
		pending:     make(map[string]*domain.Bet),
		placedKeys:  make(map[string]struct{}),
		keepaliveIn: cfg.KeepaliveRounds,
	}
}

// Seed 注入恢复结果：会话、余额、detector 回放序列、各策略连败计数
func (e *Engine) Seed(sess domain.Session, balance decimal.Decimal, replay []float64, trailingLosses map[string]int) {
	e.session = sess
	e.balance = balance
	e.signal = e.detector.Replay(replay)
	e.recent = append(e.recent[:0], replay...)
	if len(e.recent) > e.cfg.RecentWindow {
		e.recent = e.recent[len(e.recent)-e.cfg.RecentWindow:]
	}
	e.roundIndex = int64(len(replay))
	for _, st := range e.strats {
		if n := trailingLosses[st.Name()]; n > 0 {
			st.RestoreStreak(n)
		}
	}
}

// Submit 投递控制命令（非阻塞，队列满时丢弃并返回 false）
func (e *Engine) Submit(cmd events.ControlCommand) bool {
	select {
	case e.commands <- cmd:
		return true
	default:
		return false
	}
}

// Run 运行控制回路直到 stop 命令结算完当前回合、事件流关闭或 ctx 取消。
// 正常退出时写入会话结束余额。
func (e *Engine) Run(ctx context.Context) error {
	e.publish()
	for {
		select {
		case <-ctx.Done():
			e.finish()
			return ctx.Err()
		case ev, ok := <-e.driver.Events():
			if !ok {
				e.log.Warn("事件流关闭，引擎退出")
				e.finish()
				return nil
			}
			e.handleEvent(ctx, ev)
		case cmd := <-e.commands:
			e.handleCommand(ctx, cmd)
		}
		e.publish()
		if e.stopping && e.phase == domain.PhaseAwaitingRoundStart {
			e.log.Info("当前回合已结算，停机")
			e.finish()
			return nil
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev events.DriverEvent) {
	switch ev := ev.(type) {
	case events.MultiplierObserved:
		e.onMultiplier(ctx, ev)
	case events.RoundSettled:
		e.onSettled(ctx, ev)
	case events.BalanceObserved:
		e.balance = ev.Balance
	}
}

func (e *Engine) onMultiplier(ctx context.Context, ev events.MultiplierObserved) {
	if e.round != nil && e.round.ID == ev.Event.RoundID {
		if err := e.round.AppendEvent(ev.Event); err != nil {
			// 乱序/重复事件：丢弃，留给缺口检测在结算时标记
			e.log.WithError(err).WithField("round", e.round.ID).Warn("丢弃异常倍数事件")
			return
		}
		e.driveCashOuts(ctx)
		return
	}

	if e.round != nil && e.phase == domain.PhaseInProgress {
		// 上一回合没等到爆点就换了回合：该回合数据不可信
		e.log.WithFields(logrus.Fields{
			"lost": e.round.ID, "next": ev.Event.RoundID,
		}).Warn("回合未结算即消失，相关下注标记为 unknown")
		e.abandonRound(ctx, ev.Event.ObservedAt)
	}
	e.startRound(ctx, ev)
}

func (e *Engine) startRound(ctx context.Context, ev events.MultiplierObserved) {
	e.round = &domain.Round{
		ID:        ev.Event.RoundID,
		SessionID: e.session.ID,
		StartedAt: ev.Event.ObservedAt,
	}
	if err := e.round.AppendEvent(ev.Event); err != nil {
		e.log.WithError(err).Warn("回合首条倍数事件异常")
	}
	e.roundIndex++
	e.phase = domain.PhaseInProgress
	for _, st := range e.strats {
		st.OnRoundStart()
	}
	e.maybeKeepalive(ctx)
	e.decide(ctx, "")
}

func (e *Engine) onSettled(ctx context.Context, ev events.RoundSettled) {
	now := ev.At
	if e.round == nil || e.round.ID != ev.RoundID {
		// 没见过事件流的回合也必须有唯一的回合记录
		if e.round != nil {
			e.abandonRound(ctx, now)
		}
		e.round = &domain.Round{ID: ev.RoundID, SessionID: e.session.ID, StartedAt: now}
		e.roundIndex++
	}
	e.phase = domain.PhaseSettling
	e.round.CrashMultiplier = ev.CrashMultiplier
	e.round.EndedAt = &now
	if len(e.round.FindGaps()) > 0 {
		e.round.Flagged = true
		e.log.WithField("round", e.round.ID).Warn("倍数轨迹存在缺口，回合标记为异常")
	}

	var resolved []*domain.Bet
	for _, bet := range e.pending {
		if bet.RoundID != e.round.ID {
			continue
		}
		bet.SettleAgainst(e.round, now)
		resolved = append(resolved, bet)
	}

	if err := e.store.SaveSettledRound(ctx, e.round, ev.BettorCount, resolved); err != nil {
		e.log.WithError(err).WithField("round", e.round.ID).Error("回合落库失败")
	}

	e.recent = append(e.recent, ev.CrashMultiplier)
	if len(e.recent) > e.cfg.RecentWindow {
		e.recent = e.recent[1:]
	}
	if !e.round.Flagged {
		e.signal = e.detector.Observe(ev.CrashMultiplier)
	}

	for _, st := range e.strats {
		bet := e.pending[st.Name()]
		if bet == nil || bet.RoundID != e.round.ID {
			continue
		}
		st.OnSettled(bet, e.round)
		delete(e.pending, st.Name())
		profit := bet.Profit()
		e.sessionProfit = e.sessionProfit.Add(profit)
		e.balance = e.balance.Add(bet.Payout)
		e.log.WithFields(logrus.Fields{
			"strategy": st.Name(), "outcome": bet.Outcome, "profit": profit,
		}).Info("下注结算")
	}
	e.checkGlobalLoss()

	e.phase = domain.PhaseSettled
	e.round = nil
	e.placedKeys = make(map[string]struct{})
	e.phase = domain.PhaseAwaitingRoundStart
}

// abandonRound 放弃一个没等到结算的回合：挂起下注在库里标记为 unknown
func (e *Engine) abandonRound(ctx context.Context, now time.Time) {
	for name, bet := range e.pending {
		if bet.RoundID != e.round.ID {
			continue
		}
		bet.Outcome = domain.BetUnknown
		bet.ResolvedAt = &now
		if err := e.store.ResolveBet(ctx, bet.ID, domain.BetUnknown, decimal.Zero, now); err != nil {
			e.log.WithError(err).WithField("bet", bet.ID).Error("标记 unknown 失败")
		}
		for _, st := range e.strats {
			if st.Name() == name {
				st.OnSettled(bet, e.round)
			}
		}
		delete(e.pending, name)
	}
	e.round = nil
	e.phase = domain.PhaseAwaitingRoundStart
}

// checkGlobalLoss 会话累计亏损达到上限即停止一切下注
func (e *Engine) checkGlobalLoss() {
	if e.halted || e.cfg.MaxSessionLoss.IsZero() {
		return
	}
	if e.sessionProfit.Neg().GreaterThanOrEqual(e.cfg.MaxSessionLoss) {
		e.halted = true
		e.haltReason = "会话累计亏损达到上限 " + e.cfg.MaxSessionLoss.String()
		e.log.WithField("loss", e.sessionProfit.Neg()).Error(e.haltReason)
	}
}

func (e *Engine) maybeKeepalive(ctx context.Context) {
	if e.cfg.KeepaliveRounds <= 0 {
		return
	}
	e.keepaliveIn--
	if e.keepaliveIn > 0 {
		return
	}
	e.keepaliveIn = e.cfg.KeepaliveRounds
	if err := e.driver.Keepalive(ctx); err != nil {
		e.log.WithError(err).Warn("保活失败")
	}
}

func (e *Engine) gameState() domain.GameState {
	gs := domain.GameState{
		Phase:      e.phase,
		RoundIndex: e.roundIndex,
		Balance:    e.balance,
		Recent:     append([]float64(nil), e.recent...),
		Autopilot:  e.autopilot,
		Now:        time.Now().UTC(),
	}
	if e.round != nil {
		gs.RoundID = e.round.ID
		gs.Live = e.round.LastValue()
	}
	return gs
}

func (e *Engine) finish() {
	now := time.Now().UTC()
	if e.session.ID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.EndSession(ctx, e.session.ID, now, e.balance); err != nil {
		e.log.WithError(err).Error("写入会话结束余额失败")
	}
	e.publish()
}

func (e *Engine) publish() {
	if e.sink == nil {
		return
	}
	snap := ports.Snapshot{
		SessionID:  e.session.ID,
		Phase:      string(e.phase),
		RoundIndex: e.roundIndex,
		Balance:    e.balance,
		Autopilot:  e.autopilot,
		Paused:     e.paused,
		Halted:     e.halted,
		HaltReason: e.haltReason,
		Recent:     append([]float64(nil), e.recent...),
		Signal:     e.signal,
		UpdatedAt:  time.Now().UTC(),
	}
	if e.round != nil {
		snap.RoundID = e.round.ID
	}
	for _, st := range e.strats {
		snap.Strategies = append(snap.Strategies, st.Snapshot())
	}
	e.sink.Publish(snap)
}
