package engine

import (
	"context"
	"time"

	"github.com/betbot/crasher/internal/domain"
	"github.com/betbot/crasher/internal/events"
	"github.com/betbot/crasher/internal/ports"
	"github.com/betbot/crasher/internal/strategies"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// decide 驱动策略决策并执行产生的命令
// manualTarget 非空表示手动激活：只驱动该策略，且无视自动驾驶开关
func (e *Engine) decide(ctx context.Context, manualTarget string) {
	if e.stopping || e.halted || e.paused {
		return
	}
	if e.round == nil || e.phase != domain.PhaseInProgress {
		return
	}
	gs := e.gameState()
	for _, st := range e.strats {
		if manualTarget != "" && st.Name() != manualTarget {
			continue
		}
		g := gs
		if manualTarget != "" {
			g.Autopilot = true
		}
		if e.pending[st.Name()] != nil {
			// 每策略同时至多一笔未结算下注，有持仓时只接受兑现决策
			if act := st.Decide(g, e.signal); act.Type == strategies.ActionCashOut {
				e.cashOut(ctx, st)
			}
			continue
		}
		if act := st.Decide(g, e.signal); act.Type == strategies.ActionBet {
			e.placeBet(ctx, st, act)
		}
	}
}

// driveCashOuts 实时倍数推进时驱动有持仓的策略做兑现决策
// 暂停/停机中也照常执行：兑现是离场动作，不受下注开关约束
func (e *Engine) driveCashOuts(ctx context.Context) {
	if e.round == nil || e.phase != domain.PhaseInProgress {
		return
	}
	gs := e.gameState()
	for _, st := range e.strats {
		bet := e.pending[st.Name()]
		if bet == nil || bet.RoundID != e.round.ID {
			continue
		}
		if act := st.Decide(gs, e.signal); act.Type == strategies.ActionCashOut {
			e.cashOut(ctx, st)
		}
	}
}

// placeBet 校验约束、串行下发下注命令，成功后才落库并推进策略状态机
func (e *Engine) placeBet(ctx context.Context, st strategies.Strategy, act strategies.Action) {
	key := e.round.ID + "/" + st.Name()
	if _, dup := e.placedKeys[key]; dup {
		return // 同回合同策略只下一次
	}

	if act.Stake.LessThanOrEqual(decimal.Zero) || act.Stake.GreaterThan(e.balance) {
		cv := &domain.ConstraintViolation{
			Strategy: st.Name(),
			Reason:   "注金 " + act.Stake.String() + " 超出可用余额 " + e.balance.String(),
		}
		e.log.WithField("strategy", st.Name()).Warn(cv.Error())
		st.OnBetRejected(cv.Error())
		return
	}

	var ack ports.BetAck
	err := e.withRetry(ctx, "place_bet", func() error {
		var err error
		ack, err = e.driver.PlaceBet(ctx, ports.BetRequest{
			RoundID:       e.round.ID,
			Strategy:      st.Name(),
			Stake:         act.Stake,
			TargetCashout: act.TargetCashout,
		})
		return err
	})
	if err != nil {
		e.log.WithError(err).WithField("strategy", st.Name()).Warn("下注命令失败")
		st.OnBetRejected(err.Error())
		return
	}

	e.placedKeys[key] = struct{}{}
	bet := &domain.Bet{
		ID:            ack.BetID,
		SessionID:     e.session.ID,
		RoundID:       e.round.ID,
		Strategy:      st.Name(),
		Stake:         act.Stake,
		TargetCashout: act.TargetCashout,
		Outcome:       domain.BetPending,
		PlacedAt:      ack.AcceptedAt,
	}
	if bet.ID == "" {
		bet.ID = uuid.NewString()
	}
	if bet.PlacedAt.IsZero() {
		bet.PlacedAt = time.Now().UTC()
	}
	if err := e.store.InsertBet(ctx, bet); err != nil {
		e.log.WithError(err).WithField("bet", bet.ID).Error("下注落库失败")
	}
	st.OnBetAccepted(bet)
	e.pending[st.Name()] = bet
	e.balance = e.balance.Sub(act.Stake)
	e.log.WithFields(logrus.Fields{
		"strategy": st.Name(), "stake": act.Stake, "target": act.TargetCashout, "reason": act.Reason,
	}).Info("下注成功")
}

// cashOut 手动兑现该策略的未结算下注
func (e *Engine) cashOut(ctx context.Context, st strategies.Strategy) {
	bet := e.pending[st.Name()]
	if bet == nil {
		return
	}
	var ack ports.CashOutAck
	err := e.withRetry(ctx, "cash_out", func() error {
		var err error
		ack, err = e.driver.CashOut(ctx, bet.ID)
		return err
	})
	if err != nil {
		e.log.WithError(err).WithField("bet", bet.ID).Warn("兑现命令失败")
		return
	}
	bet.Outcome = domain.BetWon
	bet.Payout = ack.Payout
	bet.ResolvedAt = &ack.At
	if err := e.store.ResolveBet(ctx, bet.ID, bet.Outcome, bet.Payout, ack.At); err != nil {
		e.log.WithError(err).WithField("bet", bet.ID).Error("兑现落库失败")
	}
	// 回合还会继续，但这笔已是终态；结算时不再重复处理
	e.sessionProfit = e.sessionProfit.Add(bet.Profit())
	e.balance = e.balance.Add(bet.Payout)
	st.OnSettled(bet, e.round)
	delete(e.pending, st.Name())
	e.log.WithFields(logrus.Fields{
		"strategy": st.Name(), "bet": bet.ID, "multiplier": ack.Multiplier, "payout": ack.Payout,
	}).Info("兑现成功")
	e.checkGlobalLoss()
}

// withRetry 暂时性失败退避后重试一次，其余错误直接返回
func (e *Engine) withRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil || !domain.IsTransient(err) {
		return err
	}
	e.log.WithError(err).WithField("op", op).Warn("暂时性失败，退避后重试")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.cfg.RetryBackoff):
	}
	return fn()
}

func (e *Engine) handleCommand(ctx context.Context, cmd events.ControlCommand) {
	switch cmd.Action {
	case events.ControlPause:
		e.paused = true
		e.log.Info("暂停下注（事件继续采集）")
	case events.ControlResume:
		e.paused = false
		e.log.Info("恢复下注")
	case events.ControlStop:
		e.stopping = true
		e.log.Info("收到停机命令，等待当前回合结算")
	case events.ControlSetAutopilot:
		e.autopilot = cmd.Enabled
		e.log.WithField("enabled", cmd.Enabled).Info("切换自动驾驶")
	case events.ControlActivateStrategy:
		e.log.WithField("strategy", cmd.Strategy).Info("手动激活策略")
		e.decide(ctx, cmd.Strategy)
	case events.ControlCashOut:
		e.log.WithField("strategy", cmd.Strategy).Info("手动兑现")
		for _, st := range e.strats {
			if st.Name() == cmd.Strategy {
				e.cashOut(ctx, st)
			}
		}
	case events.ControlResetStrategy:
		for _, st := range e.strats {
			if st.Name() == cmd.Strategy {
				st.Reset()
				e.log.WithField("strategy", cmd.Strategy).Info("策略已重置")
			}
		}
	case events.ControlUpdateConfig:
		e.updateStrategyConfig(cmd)
	default:
		e.log.WithField("action", cmd.Action).Warn("未知控制命令")
	}
}

// updateStrategyConfig 热更新一个策略的配置：原地重建实例
// 有未结算下注时拒绝，避免状态机被腰斩
func (e *Engine) updateStrategyConfig(cmd events.ControlCommand) {
	if e.pending[cmd.Strategy] != nil {
		e.log.WithField("strategy", cmd.Strategy).Warn("策略有未结算下注，拒绝热更新")
		return
	}
	var cfg strategies.Config
	if err := yaml.Unmarshal(cmd.Raw, &cfg); err != nil {
		e.log.WithError(err).Warn("策略配置解析失败")
		return
	}
	if cfg.Name == "" {
		cfg.Name = cmd.Strategy
	}
	next, err := strategies.New(cfg)
	if err != nil {
		e.log.WithError(err).Warn("策略配置无效")
		return
	}
	for i, st := range e.strats {
		if st.Name() == cmd.Strategy {
			e.strats[i] = next
			e.log.WithField("strategy", cmd.Strategy).Info("策略配置已热更新")
			return
		}
	}
	e.log.WithField("strategy", cmd.Strategy).Warn("未找到要更新的策略")
}
