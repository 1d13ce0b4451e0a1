package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Session 会话领域模型
// 同一时刻只有一个活跃会话；EndedAt 为 nil 表示会话仍在进行（或进程曾异常退出）
type Session struct {
	ID           string           // 会话 ID
	StartedAt    time.Time        // 会话开始时间
	EndedAt      *time.Time       // 会话结束时间（nil = 活跃）
	StartBalance decimal.Decimal  // 起始余额
	EndBalance   *decimal.Decimal // 结束余额（nil = 未结束）
	TotalRounds  int              // 已记录回合数（冗余统计，查询时汇总）
}

// Active 会话是否仍然活跃
func (s *Session) Active() bool {
	return s != nil && s.EndedAt == nil
}

// SessionSummary 会话摘要（展示用）
type SessionSummary struct {
	Session     Session
	TotalProfit decimal.Decimal // 累计盈亏
	TotalBets   int             // 总下注数
	Wins        int             // 获胜数
	Losses      int             // 失败数
}
