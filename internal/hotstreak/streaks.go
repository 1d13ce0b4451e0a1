package hotstreak

import (
	"math"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "hotstreak")

// StreakKind 热streak强度
type StreakKind string

const (
	StreakWeak   StreakKind = "weak"
	StreakStrong StreakKind = "strong"
)

// Streak 热streak片段
// 指窗口尾部存在一段高倍数占比超过阈值的区间
type Streak struct {
	Kind        StreakKind // weak / strong
	Length      int        // 区间长度
	Average     float64    // 区间平均倍数
	StartRound  int64      // 起始回合序号（全局计数）
	Multipliers []float64  // 区间内容快照
}

// detectStreak 扫描窗口尾部是否存在热streak
// 从最大窗口往最小窗口扫，取第一个命中的区间（与历史数据分析脚本保持一致）
func (d *Detector) detectStreak() {
	for ws := d.cfg.MaxStreakWindow; ws >= d.cfg.MinStreakWindow; ws-- {
		if len(d.window) < ws {
			continue
		}
		seg := d.window[len(d.window)-ws:]
		above := countAbove(seg, d.cfg.HighThreshold)
		pct := float64(above) / float64(ws)
		if pct < d.cfg.WeakStreakPct {
			continue
		}
		kind := StreakWeak
		if pct >= d.cfg.StrongStreakPct {
			kind = StreakStrong
		}
		avg, _ := meanStdDev(seg)
		if d.current == nil {
			d.current = &Streak{
				Kind:        kind,
				Length:      ws,
				Average:     avg,
				StartRound:  d.rounds - int64(ws) + 1,
				Multipliers: append([]float64(nil), seg...),
			}
			log.Infof("检测到%s热streak：长度=%d 平均=%.2fx", kindLabel(kind), ws, avg)
		} else {
			d.current.Kind = kind
			d.current.Length = ws
			d.current.Average = avg
			d.current.Multipliers = append(d.current.Multipliers[:0], seg...)
		}
		return
	}

	// 热streak结束：记录尾声，后续 chain 形态会用到
	if d.current != nil {
		ended := *d.current
		d.last = &ended
		d.streakEndRound = d.rounds - 1
		d.roundsAfterEnd = 0
		d.coldAfterStreak = false
		d.coldCount = 0
		d.current = nil
	}
}

// trackCold 跟踪冷streak（连续低倍数）
func (d *Detector) trackCold(multiplier float64) {
	if d.last != nil {
		d.roundsAfterEnd = d.rounds - d.streakEndRound
	}
	if multiplier < d.cfg.HighThreshold {
		d.coldCount++
		if d.coldCount >= d.cfg.ColdStreakLength {
			d.coldAfterStreak = true
		}
	} else {
		d.coldCount = 0
	}
}

// InStreak 当前是否处于热streak中
func (d *Detector) InStreak() bool { return d.current != nil }

// JustEndedStreak 热streak是否刚刚结束（15 回合以内）
func (d *Detector) JustEndedStreak() bool {
	return d.last != nil && d.roundsAfterEnd <= int64(d.cfg.MaxStreakWindow)
}

// LastStreak 返回最近一次结束的热streak（nil = 没有）
func (d *Detector) LastStreak() *Streak { return d.last }

// patterns 汇总当前窗口命中的附加形态信号
func (d *Detector) patterns(sig Signal) []string {
	var out []string
	if d.current == nil {
		out = append(out, AnalyzeWindow(lastN(d.window, 10), 10)...)
		out = append(out, AnalyzeWindow(lastN(d.window, 15), 15)...)
	}
	out = append(out, d.chainPatterns()...)
	return out
}

// AnalyzeWindow 分析一个倍数窗口，返回命中的形态信号名（纯函数）
// 阈值来自对历史数据的离线分析，不做运行时调参
func AnalyzeWindow(window []float64, windowSize int) []string {
	if len(window) < windowSize {
		return nil
	}
	var signals []string
	avg, std := meanStdDev(window)
	above := countAbove(window, 2.0)
	max := maxOf(window)

	if windowSize == 10 && avg > 3.75 && above >= 4 && std > 12 && max > 7.16 {
		signals = append(signals, "pre_streak")
	}
	if std > 25 {
		signals = append(signals, "high_stddev")
	}
	return signals
}

// chainPatterns 热streak结束后的 chain 形态
// 结束后第 10 回合检查 chain 延续，第 15 回合（无冷streak时）触发 rule_of_17
func (d *Detector) chainPatterns() []string {
	if d.last == nil {
		return nil
	}
	var signals []string
	switch d.roundsAfterEnd {
	case 10:
		last10 := lastN(d.window, 10)
		if len(last10) == 10 {
			avg, _ := meanStdDev(last10)
			above := countAbove(last10, d.cfg.HighThreshold)
			if avg > d.cfg.HighThreshold && above > 4 && !d.coldAfterStreak {
				if d.last.Kind == StreakStrong && d.last.Average > 6.0 {
					signals = append(signals, "dead_ass_chain")
				} else {
					signals = append(signals, "possible_chain")
				}
			}
		}
	case 15:
		if !d.coldAfterStreak {
			signals = append(signals, "rule_of_17")
		}
	}
	return signals
}

func countAbove(values []float64, threshold float64) int {
	n := 0
	for _, v := range values {
		if v >= threshold {
			n++
		}
	}
	return n
}

func maxOf(values []float64) float64 {
	m := math.Inf(-1)
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}

func lastN(values []float64, n int) []float64 {
	if len(values) < n {
		return nil
	}
	return values[len(values)-n:]
}

func kindLabel(k StreakKind) string {
	if k == StreakStrong {
		return "强"
	}
	return "弱"
}
