// Package api 定义协调器与参与方共享的线上传输值类型
package api

import (
	"github.com/google/uuid"
)

// Xid 全局事务编号。分支事务复用其根事务的 Xid，confirm / cancel 阶段
// 通过该编号关联到对应的分支事务记录。
type Xid string

// NewXid 生成全局唯一的事务编号
func NewXid() Xid {
	return Xid(uuid.NewString())
}

func (x Xid) String() string {
	return string(x)
}

// TransactionStatus 事务状态
type TransactionStatus int

const (
	// 事务尝试中
	Trying TransactionStatus = 1
	// 事务确认中
	Confirming TransactionStatus = 2
	// 事务取消中
	Cancelling TransactionStatus = 3
)

func (s TransactionStatus) String() string {
	switch s {
	case Trying:
		return "trying"
	case Confirming:
		return "confirming"
	case Cancelling:
		return "cancelling"
	}
	return "unknown"
}

// ParseTransactionStatus 将线上传输的状态码还原为事务状态。
// 无法识别的状态码一律按 Cancelling 处理。
func ParseTransactionStatus(code int) TransactionStatus {
	switch code {
	case 1:
		return Trying
	case 2:
		return Confirming
	default:
		return Cancelling
	}
}

// TransactionType 事务类型
type TransactionType int

const (
	// 根事务
	TypeRoot TransactionType = 1
	// 分支事务
	TypeBranch TransactionType = 2
)

func (t TransactionType) String() string {
	switch t {
	case TypeRoot:
		return "root"
	case TypeBranch:
		return "branch"
	}
	return "unknown"
}

// Propagation 事务传播级别
type Propagation int

const (
	// Required 支持当前事务，当前没有事务时新建一个事务
	Required Propagation = 0
	// Supports 支持当前事务，当前没有事务时以非事务方式执行
	Supports Propagation = 1
	// Mandatory 支持当前事务，当前没有事务时报错
	Mandatory Propagation = 2
	// RequiresNew 新建事务，当前存在事务时将其挂起
	RequiresNew Propagation = 3
)

// TransactionContext 事务上下文，随调用跨越进程边界传播。
// 不可变值对象，仅携带事务编号与阶段码。
type TransactionContext struct {
	Xid    Xid `json:"xid"`
	Status int `json:"status"`
}

// NewTransactionContext 构造指定阶段的事务上下文
func NewTransactionContext(xid Xid, status TransactionStatus) *TransactionContext {
	return &TransactionContext{
		Xid:    xid,
		Status: int(status),
	}
}

// TransactionStatus 还原上下文携带的事务状态
func (tc *TransactionContext) TransactionStatus() TransactionStatus {
	return ParseTransactionStatus(tc.Status)
}
