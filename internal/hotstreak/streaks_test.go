package hotstreak

import (
	"testing"
)

// TestStreakDetection 测试热streak检测与结束
func TestStreakDetection(t *testing.T) {
	d := New(Config{})

	// 连续 12 个高倍数：达到最小扫描窗口后应该进入热streak
	for i := 0; i < 12; i++ {
		d.Observe(3.0)
	}
	if !d.InStreak() {
		t.Fatal("连续 12 个 3.0x 之后应该处于热streak中")
	}
	sig := d.Snapshot()
	if sig.Streak == nil || sig.Streak.Kind != StreakStrong {
		t.Errorf("全高倍数窗口应该为 strong streak，实际为 %+v", sig.Streak)
	}

	// 连续低倍数把占比拉下去：streak结束
	for i := 0; i < 15; i++ {
		d.Observe(1.1)
	}
	if d.InStreak() {
		t.Error("长串低倍数之后不应该仍处于热streak中")
	}
	if d.LastStreak() == nil {
		t.Error("streak结束后 LastStreak 应该保留尾声记录")
	}
}

// TestColdStreakTracking 测试冷streak跟踪
func TestColdStreakTracking(t *testing.T) {
	d := New(Config{ColdStreakLength: 5})

	for i := 0; i < 4; i++ {
		d.Observe(1.2)
	}
	if d.Snapshot().ColdStreak {
		t.Error("4 个连续低倍数还不应该判定为冷streak")
	}
	d.Observe(1.3)
	if !d.Snapshot().ColdStreak {
		t.Error("5 个连续低倍数应该判定为冷streak")
	}
	d.Observe(2.5)
	if d.Snapshot().ColdStreak {
		t.Error("高倍数出现后冷streak应该被打断")
	}
}

// TestAnalyzeWindowPreStreak 测试 pre_streak 形态信号
func TestAnalyzeWindowPreStreak(t *testing.T) {
	// 10 窗口：均值 > 3.75，≥2x 的个数 ≥ 4，σ > 12，最大值 > 7.16
	window := []float64{1.1, 1.2, 1.1, 1.3, 2.5, 3.0, 8.0, 1.2, 1.1, 45.0}
	signals := AnalyzeWindow(window, 10)

	found := false
	for _, s := range signals {
		if s == "pre_streak" {
			found = true
		}
	}
	if !found {
		t.Errorf("该窗口应该命中 pre_streak，实际信号: %v", signals)
	}
}

// TestAnalyzeWindowHighStddev 测试 high_stddev 形态信号
func TestAnalyzeWindowHighStddev(t *testing.T) {
	window := []float64{1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 90.0}
	signals := AnalyzeWindow(window, 10)

	found := false
	for _, s := range signals {
		if s == "high_stddev" {
			found = true
		}
	}
	if !found {
		t.Errorf("该窗口应该命中 high_stddev，实际信号: %v", signals)
	}
}

// TestChainRuleOf17 测试热streak结束后无冷streak时的 rule_of_17 信号
func TestChainRuleOf17(t *testing.T) {
	d := New(Config{})

	// 先形成热streak
	for i := 0; i < 15; i++ {
		d.Observe(3.0)
	}
	if !d.InStreak() {
		t.Fatal("前置条件失败：应该处于热streak中")
	}

	// 尾部喂入 1.5,1.5,2.5 循环：不会重新进入streak，也不会形成 5 连冷
	tail := []float64{1.5, 1.5, 2.5}
	seen := map[string]bool{}
	for i := 0; i < 45; i++ {
		sig := d.Observe(tail[i%3])
		for _, p := range sig.Patterns {
			seen[p] = true
		}
	}

	if d.InStreak() {
		t.Fatal("尾部序列不应该维持热streak")
	}
	if !seen["rule_of_17"] {
		t.Errorf("热streak结束 15 回合且无冷streak时应该出现 rule_of_17，实际见到: %v", seen)
	}
}
