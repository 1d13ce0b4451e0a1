package domain

import (
	"errors"
	"fmt"
)

// 驱动错误分类，决定引擎的处置方式：
// - 瞬态错误：有限退避重试，超限后升级
// - 认证错误：当前会话致命，不自动重试凭据
// - 会话失效：走 reconnect 恢复路径
// - 约束违规：策略强制回到 idle，记录后继续
// - 数据完整性错误：相关回合排除出统计并打标记

var (
	// ErrAuth 认证失败（凭据错误），对当前会话致命
	ErrAuth = errors.New("authentication failed")
	// ErrUnreachable 连不上目标站点
	ErrUnreachable = errors.New("driver unreachable")
	// ErrStaleSession 浏览器会话已失效，需要 reconnect
	ErrStaleSession = errors.New("stale driver session")
)

// TransientError 瞬态驱动错误（网络抖动、超时），可重试
type TransientError struct {
	Op  string // 出错的操作
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient driver error in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient 判断错误是否为瞬态（可重试）
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ConstraintViolation 约束违规（余额不足、重复下注、注金越界）
// 不会中断主循环：策略被强制回 idle 并记录
type ConstraintViolation struct {
	Strategy string
	Reason   string
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("constraint violation [%s]: %s", e.Strategy, e.Reason)
}

// IsConstraintViolation 判断错误是否为约束违规
func IsConstraintViolation(err error) bool {
	var cv *ConstraintViolation
	return errors.As(err, &cv)
}

// DataIntegrityError 数据完整性错误（倍数乱序、不可恢复缺口）
// 相关回合打 Flagged 标记并排除出统计，处理继续
type DataIntegrityError struct {
	RoundID string
	Reason  string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity error (round %s): %s", e.RoundID, e.Reason)
}

// IsDataIntegrity 判断错误是否为数据完整性错误
func IsDataIntegrity(err error) bool {
	var de *DataIntegrityError
	return errors.As(err, &de)
}
