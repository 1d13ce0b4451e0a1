package ports

import (
	"time"

	"github.com/betbot/crasher/internal/hotstreak"
	"github.com/betbot/crasher/internal/strategies"
	"github.com/shopspring/decimal"
)

// Snapshot 引擎对外发布的只读状态快照
// dashboard 与 API 只消费快照，不直接触碰引擎内部状态
type Snapshot struct {
	SessionID  string
	Phase      string
	RoundID    string
	RoundIndex int64
	Balance    decimal.Decimal
	Autopilot  bool
	Paused     bool
	Halted     bool
	HaltReason string
	Recent     []float64
	Signal     hotstreak.Signal
	Strategies []strategies.Snapshot
	UpdatedAt  time.Time
}

// SnapshotSink 快照消费端（非阻塞，慢消费者丢弃旧快照）
type SnapshotSink interface {
	Publish(Snapshot)
}
