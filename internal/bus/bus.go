// Package bus 引擎快照的发布/订阅枢纽
// 引擎每处理完一个事件就发布一次快照；消费者（API、dashboard）按需取最新值，
// 慢消费者不会阻塞引擎，只会看到合并后的最新状态
package bus

import (
	"sync"

	"github.com/betbot/crasher/internal/ports"
	"github.com/betbot/crasher/pkg/sigchan"
)

// SnapshotBus ports.SnapshotSink 的标准实现
type SnapshotBus struct {
	mu     sync.RWMutex
	last   ports.Snapshot
	seeded bool
	notify *sigchan.Chan
}

func New() *SnapshotBus {
	return &SnapshotBus{notify: sigchan.New(1)}
}

// Publish 覆盖最新快照并发出信号（非阻塞）
func (b *SnapshotBus) Publish(s ports.Snapshot) {
	b.mu.Lock()
	b.last = s
	b.seeded = true
	b.mu.Unlock()
	b.notify.Emit()
}

// Latest 返回最新快照；引擎还没发布过任何快照时 ok 为 false
func (b *SnapshotBus) Latest() (snap ports.Snapshot, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, b.seeded
}

// Updates 返回合并信号通道，用于 select 等待新快照
func (b *SnapshotBus) Updates() <-chan struct{} {
	return b.notify.C()
}
