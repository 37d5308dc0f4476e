package txmanager

import (
	"context"
	"time"

	"tcc/api"
)

// TransactionStore 事务持久化存储。
// 多个执行流之间唯一共享的资源就是存储，所有并发协调都通过 Update 的
// 乐观锁表达，进程内不额外加锁。
type TransactionStore interface {
	// Create 持久化一条新事务记录，编号已存在时返回 ErrXidExists
	Create(ctx context.Context, tx *Transaction) error
	// Get 按编号查询事务，记录不存在时返回 ErrTransactionNotExist
	Get(ctx context.Context, xid api.Xid) (*Transaction, error)
	// Update 以乐观锁方式更新事务：仅当存储中的版本与 tx.Version 一致时生效，
	// 成功后持久化版本加一并刷新最后更新时间，同时回写到 tx 本身；
	// 版本不一致时返回 ErrVersionConflict，调用方不应在进程内重试
	Update(ctx context.Context, tx *Transaction) error
	// Delete 按编号删除事务记录，存储支持时附带版本校验，
	// 避免误删被恢复任务并发改写过的记录
	Delete(ctx context.Context, tx *Transaction) error
	// ListStale 返回最后更新时间早于 lastUpdateBefore 且重试次数小于
	// maxRetriedCount 的事务，供恢复任务重新驱动
	ListStale(ctx context.Context, lastUpdateBefore time.Time, maxRetriedCount int) ([]*Transaction, error)
}
