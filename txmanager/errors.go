package txmanager

import (
	"errors"
	"fmt"
)

var (
	// ErrTransactionNotExist 事务记录不存在。事务完成后记录即被删除，
	// confirm / cancel 重复投递时命中该错误属于预期行为，调用方应吞掉
	ErrTransactionNotExist = errors.New("transaction not existed")
	// ErrXidExists 创建事务时编号已存在
	ErrXidExists = errors.New("transaction xid already existed")
	// ErrVersionConflict 乐观锁版本冲突，说明事务被其他流程并发修改
	ErrVersionConflict = errors.New("transaction version conflict")
	// ErrExecutorOverloaded 异步任务提交失败
	ErrExecutorOverloaded = errors.New("async executor overloaded")
)

// SystemError 内部一致性被破坏或使用方式错误，致命且不可重试
type SystemError struct {
	Message string
}

func NewSystemError(format string, args ...interface{}) *SystemError {
	return &SystemError{Message: fmt.Sprintf(format, args...)}
}

func (e *SystemError) Error() string {
	return e.Message
}

// ConfirmError confirm 阶段执行失败。事务记录原样保留，等待恢复任务重试
type ConfirmError struct {
	Err error
}

func (e *ConfirmError) Error() string {
	return fmt.Sprintf("confirm failed: %v", e.Err)
}

func (e *ConfirmError) Unwrap() error {
	return e.Err
}

// CancelError cancel 阶段执行失败。事务记录原样保留，等待恢复任务重试
type CancelError struct {
	Err error
}

func (e *CancelError) Error() string {
	return fmt.Sprintf("cancel failed: %v", e.Err)
}

func (e *CancelError) Unwrap() error {
	return e.Err
}
