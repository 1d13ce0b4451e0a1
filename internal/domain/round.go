package domain

import (
	"time"
)

// MultiplierEvent 倍数事件
// 由 driver 采集的单条实时倍数，Sequence 在同一回合内严格递增，落库后不可变
type MultiplierEvent struct {
	RoundID    string    // 回合 ID
	Sequence   int64     // 回合内单调递增序号
	Value      float64   // 倍数值（>= 1.0）
	ObservedAt time.Time // 采集时间戳
}

// Round 回合领域模型
// EndedAt 一旦写入即为终态；CrashMultiplier 必须等于回合结束前观察到的最后一个倍数
type Round struct {
	ID              string            // 回合 ID
	SessionID       string            // 所属会话 ID
	CrashMultiplier float64           // 最终爆点倍数（>= 1.0）
	StartedAt       time.Time         // 回合开始时间
	EndedAt         *time.Time        // 回合结束时间（nil = 进行中）
	Flagged         bool              // 数据异常标记（缺口不可恢复等，统计时排除）
	Events          []MultiplierEvent // 倍数轨迹（按 Sequence 升序）
}

// Settled 回合是否已结算
func (r *Round) Settled() bool {
	return r != nil && r.EndedAt != nil
}

// LastValue 返回轨迹中最后一个倍数，无事件时返回 0
func (r *Round) LastValue() float64 {
	if r == nil || len(r.Events) == 0 {
		return 0
	}
	return r.Events[len(r.Events)-1].Value
}

// ReachedTarget 判断轨迹是否在爆点前到达目标倍数
// 结算规则：目标 <= 爆点倍数即为到达（爆点值本身是最后一个可兑现倍数）
func (r *Round) ReachedTarget(target float64) bool {
	if r == nil || target <= 0 {
		return false
	}
	return r.CrashMultiplier >= target
}

// AppendEvent 追加一条倍数事件，要求 Sequence 严格递增
// 返回 DataIntegrityError 表示事件乱序或重复
func (r *Round) AppendEvent(ev MultiplierEvent) error {
	if ev.RoundID != r.ID {
		return &DataIntegrityError{RoundID: r.ID, Reason: "event round mismatch: " + ev.RoundID}
	}
	if n := len(r.Events); n > 0 && ev.Sequence <= r.Events[n-1].Sequence {
		return &DataIntegrityError{RoundID: r.ID, Reason: "out-of-order multiplier event"}
	}
	if ev.Value < 1.0 {
		return &DataIntegrityError{RoundID: r.ID, Reason: "multiplier below 1.0"}
	}
	r.Events = append(r.Events, ev)
	return nil
}

// GapRange 序号缺口区间（闭区间）
type GapRange struct {
	RoundID string
	From    int64
	To      int64
}

// FindGaps 检测轨迹中的序号缺口
// 回放/回填时使用；事件必须已按 Sequence 升序
func (r *Round) FindGaps() []GapRange {
	var gaps []GapRange
	for i := 1; i < len(r.Events); i++ {
		prev, cur := r.Events[i-1].Sequence, r.Events[i].Sequence
		if cur > prev+1 {
			gaps = append(gaps, GapRange{RoundID: r.ID, From: prev + 1, To: cur - 1})
		}
	}
	return gaps
}
