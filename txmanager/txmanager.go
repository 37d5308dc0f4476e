package txmanager

import (
	"context"

	"tcc/api"
	"tcc/log"
)

// TransactionManager 事务管理器，提供事务的发起、传播、提交、回滚，
// 以及参与者的登记。跨越 commit / rollback 持久化点之后的参与者驱动
// 可交由内部工作池异步执行。
type TransactionManager struct {
	ctx        context.Context
	stop       context.CancelFunc
	opts       *Options
	store      TransactionStore
	terminator *Terminator
	executor   Executor
}

func NewTransactionManager(store TransactionStore, opts ...Option) *TransactionManager {
	ctx, cancel := context.WithCancel(context.Background())
	manager := &TransactionManager{
		ctx:        ctx,
		stop:       cancel,
		opts:       &Options{},
		store:      store,
		terminator: NewTerminator(),
	}

	for _, opt := range opts {
		opt(manager.opts)
	}
	// 兜底默认选项
	repair(manager.opts)

	if manager.opts.Executor != nil {
		manager.executor = manager.opts.Executor
	} else {
		manager.executor = newPool(ctx, manager.opts.Workers, manager.opts.QueueSize)
	}
	return manager
}

func (m *TransactionManager) Stop() {
	m.stop()
}

// Register 启动期注册参与方的 confirm / cancel 执行逻辑
func (m *TransactionManager) Register(targetType string, methodName string, handler Handler) error {
	return m.terminator.Register(targetType, methodName, handler)
}

// Terminator 暴露延迟调用执行器，供恢复任务复用同一份注册表
func (m *TransactionManager) Terminator() *Terminator {
	return m.terminator
}

// Begin 发起根事务：创建、持久化并压入当前调用链的事务栈
func (m *TransactionManager) Begin(ctx context.Context) (*Transaction, error) {
	s := sessionFrom(ctx)
	if s == nil {
		return nil, NewSystemError("no transaction session in context, call WithSession first")
	}
	tx := NewTransaction(api.TypeRoot)
	if err := m.store.Create(ctx, tx); err != nil {
		return nil, err
	}
	s.push(tx)
	return tx, nil
}

// PropagationNewBegin 传播发起分支事务。
// 调用方在 Trying 阶段被识别为服务提供者时走该路径
func (m *TransactionManager) PropagationNewBegin(ctx context.Context, tc *api.TransactionContext) (*Transaction, error) {
	s := sessionFrom(ctx)
	if s == nil {
		return nil, NewSystemError("no transaction session in context, call WithSession first")
	}
	tx := NewBranchTransaction(tc)
	if err := m.store.Create(ctx, tx); err != nil {
		return nil, err
	}
	s.push(tx)
	return tx, nil
}

// PropagationExistBegin 传播获取分支事务。
// 调用方在 Confirming / Cancelling 阶段被识别为服务提供者时走该路径。
// 记录不存在返回 ErrTransactionNotExist，说明该分支已被先前的投递完成
func (m *TransactionManager) PropagationExistBegin(ctx context.Context, tc *api.TransactionContext) (*Transaction, error) {
	s := sessionFrom(ctx)
	if s == nil {
		return nil, NewSystemError("no transaction session in context, call WithSession first")
	}
	tx, err := m.store.Get(ctx, tc.Xid)
	if err != nil {
		return nil, err
	}
	tx.ChangeStatus(tc.TransactionStatus())
	s.push(tx)
	return tx, nil
}

// Commit 提交当前事务：先持久化 Confirming 状态（先落盘再产生副作用，
// 落盘后进程崩溃也能被恢复任务补偿），再驱动所有参与者 confirm，
// 全部成功后删除事务记录。async 时参与者驱动交给工作池，
// 提交任务失败会同步反馈给调用方
func (m *TransactionManager) Commit(ctx context.Context, async bool) error {
	tx := m.CurrentTransaction(ctx)
	if tx == nil {
		return NewSystemError("no active transaction to commit")
	}
	tx.ChangeStatus(api.Confirming)
	if err := m.store.Update(ctx, tx); err != nil {
		return err
	}

	if async {
		if err := m.executor.Submit(func() {
			if err := m.commitTransaction(m.ctx, tx); err != nil {
				log.Errorf("async confirm failed, xid: %s, err: %v", tx.Xid, err)
			}
		}); err != nil {
			log.WarnContextf(ctx, "async confirm submit failed, recovery job will try to confirm later, xid: %s, err: %v", tx.Xid, err)
			return &ConfirmError{Err: err}
		}
		return nil
	}
	return m.commitTransaction(ctx, tx)
}

// Rollback 回滚当前事务，流程与 Commit 对称
func (m *TransactionManager) Rollback(ctx context.Context, async bool) error {
	tx := m.CurrentTransaction(ctx)
	if tx == nil {
		return NewSystemError("no active transaction to rollback")
	}
	tx.ChangeStatus(api.Cancelling)
	if err := m.store.Update(ctx, tx); err != nil {
		return err
	}

	if async {
		if err := m.executor.Submit(func() {
			if err := m.rollbackTransaction(m.ctx, tx); err != nil {
				log.Errorf("async cancel failed, xid: %s, err: %v", tx.Xid, err)
			}
		}); err != nil {
			log.WarnContextf(ctx, "async cancel submit failed, recovery job will try to cancel later, xid: %s, err: %v", tx.Xid, err)
			return &CancelError{Err: err}
		}
		return nil
	}
	return m.rollbackTransaction(ctx, tx)
}

func (m *TransactionManager) commitTransaction(ctx context.Context, tx *Transaction) error {
	if err := tx.Commit(ctx, m.terminator); err != nil {
		log.WarnContextf(ctx, "transaction confirm failed, recovery job will try to confirm later, xid: %s, err: %v", tx.Xid, err)
		return &ConfirmError{Err: err}
	}
	if err := m.store.Delete(ctx, tx); err != nil {
		return &ConfirmError{Err: err}
	}
	return nil
}

func (m *TransactionManager) rollbackTransaction(ctx context.Context, tx *Transaction) error {
	if err := tx.Rollback(ctx, m.terminator); err != nil {
		log.WarnContextf(ctx, "transaction cancel failed, recovery job will try to cancel later, xid: %s, err: %v", tx.Xid, err)
		return &CancelError{Err: err}
	}
	if err := m.store.Delete(ctx, tx); err != nil {
		return &CancelError{Err: err}
	}
	return nil
}

// SyncTransaction 不改变状态持久化当前事务。
// 业务在 Trying 阶段出现延迟回滚类错误时，只保证参与者信息落盘，
// confirm / cancel 的决策留给恢复任务
func (m *TransactionManager) SyncTransaction(ctx context.Context) error {
	tx := m.CurrentTransaction(ctx)
	if tx == nil {
		return NewSystemError("no active transaction to sync")
	}
	return m.store.Update(ctx, tx)
}

// CleanAfterCompletion 将事务从当前调用链的事务栈移除。
// 栈顶必须是给定事务，否则说明事务栈被并发误用，属于致命错误
func (m *TransactionManager) CleanAfterCompletion(ctx context.Context, tx *Transaction) error {
	s := sessionFrom(ctx)
	if s == nil || tx == nil || s.peek() == nil {
		return nil
	}
	if s.peek() != tx {
		return NewSystemError("illegal transaction when clean after completion")
	}
	s.pop()
	return nil
}

// EnlistParticipant 登记参与者到当前事务并立即持久化
func (m *TransactionManager) EnlistParticipant(ctx context.Context, participant *Participant) error {
	tx := m.CurrentTransaction(ctx)
	if tx == nil {
		return NewSystemError("no active transaction to enlist participant")
	}
	if participant.Xid == "" {
		participant.SetXid(tx.Xid)
	}
	tx.Enlist(participant)
	return m.store.Update(ctx, tx)
}

// CurrentTransaction 返回当前调用链栈顶的事务，没有时返回 nil
func (m *TransactionManager) CurrentTransaction(ctx context.Context) *Transaction {
	s := sessionFrom(ctx)
	if s == nil {
		return nil
	}
	return s.peek()
}

// IsTransactionActive 当前调用链是否处于事务中
func (m *TransactionManager) IsTransactionActive(ctx context.Context) bool {
	return m.CurrentTransaction(ctx) != nil
}
