package interceptor

import (
	"context"
	"errors"

	"tcc/api"
	"tcc/log"
	"tcc/txmanager"
)

// Compensable 可补偿方法声明，由接入层（切面、装饰器、RPC 框架）提供
type Compensable struct {
	// 事务传播级别
	Propagation api.Propagation
	// confirm 方法名
	ConfirmMethod string
	// cancel 方法名
	CancelMethod string
	// 事务上下文编辑器名称，空值使用默认编辑器
	Editor string
	// 异步提交
	AsyncConfirm bool
	// 异步取消
	AsyncCancel bool
}

// BusinessFunc 业务原逻辑，即 Try 逻辑
type BusinessFunc func(ctx context.Context) (interface{}, error)

// Interceptor 可补偿事务拦截器：计算方法角色并驱动对应的事务流程。
// 业务返回值与业务错误原样透传，只有基础设施动作本身失败时
// 才以基础设施错误取而代之。
type Interceptor struct {
	manager *txmanager.TransactionManager
	opts    *Options
}

func NewInterceptor(manager *txmanager.TransactionManager, opts ...Option) *Interceptor {
	interceptor := &Interceptor{
		manager: manager,
		opts:    &Options{},
	}
	for _, opt := range opts {
		opt(interceptor.opts)
	}
	return interceptor
}

// Intercept 拦截一次可补偿方法调用。
// args 为被拦截方法的调用参数，事务上下文按声明的编辑器从中提取
func (i *Interceptor) Intercept(ctx context.Context, compensable Compensable, args []interface{}, business BusinessFunc) (interface{}, error) {
	ctx = txmanager.WithSession(ctx)

	editor, err := api.EditorByName(compensable.Editor)
	if err != nil {
		return nil, err
	}
	tc := editor.Get(args)
	isTransactionActive := i.manager.IsTransactionActive(ctx)

	if !IsLegalTransactionContext(isTransactionActive, compensable.Propagation, tc) {
		return nil, txmanager.NewSystemError("no active compensable transaction while propagation is mandatory")
	}

	switch CalculateMethodRole(compensable.Propagation, isTransactionActive, tc) {
	case RoleRoot:
		return i.rootMethodProceed(ctx, compensable, business)
	case RoleProvider:
		return i.providerMethodProceed(ctx, compensable, tc, business)
	default:
		return business(ctx)
	}
}

// rootMethodProceed 根事务流程：发起事务、执行业务原逻辑、提交或回滚。
// 业务失败时上抛的是原始业务错误；延迟回滚类错误只同步持久化事务，
// confirm / cancel 的决策留给恢复任务
func (i *Interceptor) rootMethodProceed(ctx context.Context, compensable Compensable, business BusinessFunc) (ret interface{}, err error) {
	tx, err := i.manager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		// 栈顶不一致属于致命错误，覆盖原有返回
		if cleanErr := i.manager.CleanAfterCompletion(ctx, tx); cleanErr != nil {
			ret, err = nil, cleanErr
		}
	}()

	returnValue, bizErr := business(ctx)
	if bizErr != nil {
		if i.isDelayCancelError(bizErr) {
			if syncErr := i.manager.SyncTransaction(ctx); syncErr != nil {
				return nil, syncErr
			}
		} else {
			log.WarnContextf(ctx, "compensable transaction trying failed, xid: %s, err: %v", tx.Xid, bizErr)
			if rollbackErr := i.manager.Rollback(ctx, compensable.AsyncCancel); rollbackErr != nil {
				return nil, rollbackErr
			}
		}
		return nil, bizErr
	}

	if commitErr := i.manager.Commit(ctx, compensable.AsyncConfirm); commitErr != nil {
		return nil, commitErr
	}
	return returnValue, nil
}

// providerMethodProceed 服务提供者流程，依据上下文携带的阶段分派：
// Trying 传播发起分支事务并执行业务原逻辑；
// Confirming / Cancelling 传播获取分支事务并提交 / 回滚，
// 事务记录已不存在说明该分支先前已完成，幂等吞掉
func (i *Interceptor) providerMethodProceed(ctx context.Context, compensable Compensable, tc *api.TransactionContext, business BusinessFunc) (ret interface{}, err error) {
	var tx *txmanager.Transaction
	defer func() {
		if cleanErr := i.manager.CleanAfterCompletion(ctx, tx); cleanErr != nil {
			ret, err = nil, cleanErr
		}
	}()

	switch tc.TransactionStatus() {
	case api.Trying:
		if tx, err = i.manager.PropagationNewBegin(ctx, tc); err != nil {
			return nil, err
		}
		return business(ctx)
	case api.Confirming:
		if tx, err = i.manager.PropagationExistBegin(ctx, tc); err != nil {
			if errors.Is(err, txmanager.ErrTransactionNotExist) {
				// the transaction has been committed, ignore it
				return nil, nil
			}
			return nil, err
		}
		if commitErr := i.manager.Commit(ctx, compensable.AsyncConfirm); commitErr != nil {
			return nil, commitErr
		}
	case api.Cancelling:
		if tx, err = i.manager.PropagationExistBegin(ctx, tc); err != nil {
			if errors.Is(err, txmanager.ErrTransactionNotExist) {
				// the transaction has been rolled back, ignore it
				return nil, nil
			}
			return nil, err
		}
		if rollbackErr := i.manager.Rollback(ctx, compensable.AsyncCancel); rollbackErr != nil {
			return nil, rollbackErr
		}
	}
	return nil, nil
}

func (i *Interceptor) isDelayCancelError(err error) bool {
	for _, target := range i.opts.DelayCancelErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	if i.opts.DelayCancelMatcher != nil {
		return i.opts.DelayCancelMatcher(err)
	}
	return false
}
