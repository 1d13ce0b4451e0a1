package hotstreak

import (
	"fmt"
	"math"
)

// 默认阈值（可全部通过配置覆盖，经验值来自历史数据回测）
const (
	DefaultWindowSize       = 20  // 长窗口容量
	DefaultShortWindow      = 5   // 短窗口长度
	DefaultStdDevThreshold  = 1.5 // 分类所需的标准差倍数
	DefaultHighThreshold    = 2.0 // "高倍数" 二值化阈值
	DefaultColdStreakLength = 5   // 连续低倍数达到该值视为冷streak
	DefaultWeakStreakPct    = 0.65
	DefaultStrongStreakPct  = 0.75
	DefaultMinStreakWindow  = 10
	DefaultMaxStreakWindow  = 15
)

// Classification 热度分类
type Classification string

const (
	Neutral Classification = "neutral"
	Hot     Classification = "hot"
	Cold    Classification = "cold"
)

// Config 检测器配置
type Config struct {
	WindowSize       int     `yaml:"windowSize" json:"windowSize"`             // 长窗口容量（满窗才开始分类）
	ShortWindow      int     `yaml:"shortWindow" json:"shortWindow"`           // 短窗口长度
	StdDevThreshold  float64 `yaml:"stdDevThreshold" json:"stdDevThreshold"`   // 短长窗口均值差需超过的 σ 倍数
	HighThreshold    float64 `yaml:"highThreshold" json:"highThreshold"`       // 高倍数二值化阈值
	ColdStreakLength int     `yaml:"coldStreakLength" json:"coldStreakLength"` // 冷streak判定长度
	WeakStreakPct    float64 `yaml:"weakStreakPct" json:"weakStreakPct"`       // 弱热streak占比阈值
	StrongStreakPct  float64 `yaml:"strongStreakPct" json:"strongStreakPct"`   // 强热streak占比阈值
	MinStreakWindow  int     `yaml:"minStreakWindow" json:"minStreakWindow"`   // 热streak扫描最小窗口
	MaxStreakWindow  int     `yaml:"maxStreakWindow" json:"maxStreakWindow"`   // 热streak扫描最大窗口
}

// ApplyDefaults 应用默认配置
func (c *Config) ApplyDefaults() {
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.ShortWindow <= 0 {
		c.ShortWindow = DefaultShortWindow
	}
	if c.StdDevThreshold <= 0 {
		c.StdDevThreshold = DefaultStdDevThreshold
	}
	if c.HighThreshold <= 0 {
		c.HighThreshold = DefaultHighThreshold
	}
	if c.ColdStreakLength <= 0 {
		c.ColdStreakLength = DefaultColdStreakLength
	}
	if c.WeakStreakPct <= 0 {
		c.WeakStreakPct = DefaultWeakStreakPct
	}
	if c.StrongStreakPct <= 0 {
		c.StrongStreakPct = DefaultStrongStreakPct
	}
	if c.MinStreakWindow <= 0 {
		c.MinStreakWindow = DefaultMinStreakWindow
	}
	if c.MaxStreakWindow <= 0 {
		c.MaxStreakWindow = DefaultMaxStreakWindow
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.ShortWindow >= c.WindowSize {
		return fmt.Errorf("shortWindow (%d) 必须小于 windowSize (%d)", c.ShortWindow, c.WindowSize)
	}
	if c.WeakStreakPct > c.StrongStreakPct {
		return fmt.Errorf("weakStreakPct (%.2f) 不能大于 strongStreakPct (%.2f)", c.WeakStreakPct, c.StrongStreakPct)
	}
	if c.MinStreakWindow > c.MaxStreakWindow {
		return fmt.Errorf("minStreakWindow (%d) 不能大于 maxStreakWindow (%d)", c.MinStreakWindow, c.MaxStreakWindow)
	}
	if c.MaxStreakWindow > c.WindowSize {
		return fmt.Errorf("maxStreakWindow (%d) 不能大于 windowSize (%d)", c.MaxStreakWindow, c.WindowSize)
	}
	return nil
}

// Signal 热度信号
// 每次回合结算后重新计算；完全由窗口内容推导，可从持久化历史回放得到相同结果
type Signal struct {
	Window          []float64      // 窗口内容快照（旧在前）
	Classification  Classification // 分类结果
	Confidence      float64        // 归一化置信度 [0,1]
	ShortMean       float64        // 短窗口均值
	LongMean        float64        // 长窗口均值
	LongStdDev      float64        // 长窗口标准差
	Streak          *Streak        // 当前热streak（nil = 无）
	StreakJustEnded bool           // 热streak是否刚结束不久（chain 窗口内）
	ColdStreak      bool           // 冷streak是否正在发生
	Patterns        []string       // 附加形态信号（pre_streak / high_stddev / chain 等）
}

// Detector 热度检测器
// 维护一个有界滚动窗口（超容量时淘汰最旧值）；分类本身是窗口内容的纯函数
type Detector struct {
	cfg    Config
	window []float64

	// streak episode 状态，完全由观察序列推导（回放同一序列必然得到相同状态）
	rounds           int64
	current          *Streak
	last             *Streak
	streakEndRound   int64
	roundsAfterEnd   int64
	coldCount        int
	coldAfterStreak  bool
}

// New 创建检测器
func New(cfg Config) *Detector {
	cfg.ApplyDefaults()
	return &Detector{cfg: cfg, window: make([]float64, 0, cfg.WindowSize)}
}

// Config 返回检测器配置
func (d *Detector) Config() Config { return d.cfg }

// Rounds 已观察的回合数
func (d *Detector) Rounds() int64 { return d.rounds }

// Observe 观察一个回合结果并返回最新信号
func (d *Detector) Observe(crashMultiplier float64) Signal {
	d.rounds++
	d.window = append(d.window, crashMultiplier)
	if len(d.window) > d.cfg.WindowSize {
		d.window = d.window[1:]
	}
	d.detectStreak()
	d.trackCold(crashMultiplier)
	return d.signal()
}

// Replay 依序回放一段历史（恢复时使用），返回回放后的信号
func (d *Detector) Replay(history []float64) Signal {
	sig := d.signal()
	for _, m := range history {
		sig = d.Observe(m)
	}
	return sig
}

// Snapshot 返回当前信号（不改变状态）
func (d *Detector) Snapshot() Signal {
	return d.signal()
}

func (d *Detector) signal() Signal {
	sig := Classify(d.window, d.cfg)
	sig.Streak = d.current
	sig.StreakJustEnded = d.JustEndedStreak()
	sig.ColdStreak = d.coldCount >= d.cfg.ColdStreakLength
	sig.Patterns = d.patterns(sig)
	return sig
}

// Classify 对窗口内容进行热度分类（纯函数）
// 窗口未满时返回 neutral / 置信度 0（样本不足）
func Classify(window []float64, cfg Config) Signal {
	cfg.ApplyDefaults()

	sig := Signal{
		Window:         append([]float64(nil), window...),
		Classification: Neutral,
	}
	if len(window) < cfg.WindowSize {
		return sig
	}

	longMean, longStd := meanStdDev(window)
	short := window[len(window)-cfg.ShortWindow:]
	shortMean, _ := meanStdDev(short)

	sig.ShortMean = shortMean
	sig.LongMean = longMean
	sig.LongStdDev = longStd

	if longStd == 0 {
		return sig
	}

	diff := shortMean - longMean
	gate := cfg.StdDevThreshold * longStd
	switch {
	case diff > gate:
		sig.Classification = Hot
	case diff < -gate:
		sig.Classification = Cold
	}
	// 置信度：均值差相对判定门限的归一化距离，gate 处为 0.5，2*gate 以上封顶为 1
	// 未越过门限时同样保留，作为距离度量（必然 < 0.5）
	sig.Confidence = clamp01(math.Abs(diff) / (2 * gate))
	return sig
}

func meanStdDev(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var varsum float64
	for _, v := range values {
		varsum += (v - mean) * (v - mean)
	}
	std = math.Sqrt(varsum / float64(len(values)))
	return mean, std
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
