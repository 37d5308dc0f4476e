package interceptor_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcc/api"
	"tcc/interceptor"
	"tcc/store/memory"
	"tcc/txmanager"
)

type fixture struct {
	store       *memory.Store
	manager     *txmanager.TransactionManager
	interceptor *interceptor.Interceptor
	confirmed   int
	cancelled   int
}

func newFixture(t *testing.T, opts ...interceptor.Option) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore()}
	f.manager = txmanager.NewTransactionManager(f.store)
	t.Cleanup(f.manager.Stop)

	require.NoError(t, f.manager.Register("orderService", "confirmOrder", func(ctx context.Context, args []interface{}) error {
		f.confirmed++
		return nil
	}))
	require.NoError(t, f.manager.Register("orderService", "cancelOrder", func(ctx context.Context, args []interface{}) error {
		f.cancelled++
		return nil
	}))

	f.interceptor = interceptor.NewInterceptor(f.manager, opts...)
	return f
}

// 业务原逻辑：登记一个参与者，模拟 Try 预留资源
func (f *fixture) enlistingBusiness(t *testing.T, result interface{}, bizErr error) interceptor.BusinessFunc {
	return func(ctx context.Context) (interface{}, error) {
		p := txmanager.NewParticipant("",
			txmanager.NewInvocationContext("orderService", "confirmOrder", []string{api.ContextParameterType}, nil),
			txmanager.NewInvocationContext("orderService", "cancelOrder", []string{api.ContextParameterType}, nil),
			api.DefaultEditorName)
		require.NoError(t, f.manager.EnlistParticipant(ctx, p))
		return result, bizErr
	}
}

func compensable() interceptor.Compensable {
	return interceptor.Compensable{
		Propagation:   api.Required,
		ConfirmMethod: "confirmOrder",
		CancelMethod:  "cancelOrder",
	}
}

func TestRootSuccessCommitsAndReturnsValue(t *testing.T) {
	f := newFixture(t)
	var xid api.Xid
	business := func(ctx context.Context) (interface{}, error) {
		xid = f.manager.CurrentTransaction(ctx).Xid
		return f.enlistingBusiness(t, "order-1001", nil)(ctx)
	}

	got, err := f.interceptor.Intercept(context.Background(), compensable(), nil, business)
	require.NoError(t, err)
	assert.Equal(t, "order-1001", got)
	assert.Equal(t, 1, f.confirmed)
	assert.Zero(t, f.cancelled)

	_, err = f.store.Get(context.Background(), xid)
	assert.ErrorIs(t, err, txmanager.ErrTransactionNotExist)
}

func TestRootFailureRollsBackAndReturnsOriginalError(t *testing.T) {
	f := newFixture(t)
	bizErr := errors.New("insufficient balance")
	var xid api.Xid
	business := func(ctx context.Context) (interface{}, error) {
		xid = f.manager.CurrentTransaction(ctx).Xid
		return f.enlistingBusiness(t, nil, bizErr)(ctx)
	}

	_, err := f.interceptor.Intercept(context.Background(), compensable(), nil, business)
	// 原始业务错误原样上抛，不被基础设施错误替换
	assert.Equal(t, bizErr, err)
	assert.Equal(t, 1, f.cancelled)
	assert.Zero(t, f.confirmed)

	_, err = f.store.Get(context.Background(), xid)
	assert.ErrorIs(t, err, txmanager.ErrTransactionNotExist)
}

func TestRootDelayCancelLeavesRowTrying(t *testing.T) {
	timeoutErr := errors.New("downstream timeout")
	f := newFixture(t, interceptor.WithDelayCancelErrors(timeoutErr))

	var xid api.Xid
	wrapped := fmt.Errorf("call inventory: %w", timeoutErr)
	business := func(ctx context.Context) (interface{}, error) {
		xid = f.manager.CurrentTransaction(ctx).Xid
		return f.enlistingBusiness(t, nil, wrapped)(ctx)
	}

	_, err := f.interceptor.Intercept(context.Background(), compensable(), nil, business)
	assert.Equal(t, wrapped, err)
	assert.Zero(t, f.confirmed)
	assert.Zero(t, f.cancelled)

	// 记录留在 Trying，confirm / cancel 的决策交给恢复任务
	stored, storeErr := f.store.Get(context.Background(), xid)
	require.NoError(t, storeErr)
	assert.Equal(t, api.Trying, stored.Status)
	require.Len(t, stored.Participants, 1)
}

func TestMandatoryWithoutTransactionFails(t *testing.T) {
	f := newFixture(t)
	comp := compensable()
	comp.Propagation = api.Mandatory

	_, err := f.interceptor.Intercept(context.Background(), comp, nil, func(ctx context.Context) (interface{}, error) {
		t.Fatal("business must not run")
		return nil, nil
	})
	var sysErr *txmanager.SystemError
	assert.ErrorAs(t, err, &sysErr)
}

func TestSupportsWithoutTransactionRunsPlain(t *testing.T) {
	f := newFixture(t)
	comp := compensable()
	comp.Propagation = api.Supports

	got, err := f.interceptor.Intercept(context.Background(), comp, nil, func(ctx context.Context) (interface{}, error) {
		assert.False(t, f.manager.IsTransactionActive(ctx))
		return "plain", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "plain", got)
}

func TestProviderTryingCreatesBranch(t *testing.T) {
	f := newFixture(t)
	xid := api.NewXid()
	tc := api.NewTransactionContext(xid, api.Trying)

	got, err := f.interceptor.Intercept(context.Background(), compensable(),
		[]interface{}{tc}, f.enlistingBusiness(t, "reserved", nil))
	require.NoError(t, err)
	assert.Equal(t, "reserved", got)

	// 分支事务落盘，等待根事务的决策传播
	stored, err := f.store.Get(context.Background(), xid)
	require.NoError(t, err)
	assert.Equal(t, api.TypeBranch, stored.Type)
	assert.Equal(t, api.Trying, stored.Status)
	require.Len(t, stored.Participants, 1)
	assert.Zero(t, f.confirmed)
}

func TestProviderConfirmingDrivesBranch(t *testing.T) {
	f := newFixture(t)
	xid := api.NewXid()

	_, err := f.interceptor.Intercept(context.Background(), compensable(),
		[]interface{}{api.NewTransactionContext(xid, api.Trying)},
		f.enlistingBusiness(t, nil, nil))
	require.NoError(t, err)

	// confirm 阶段的投递：业务原逻辑不再执行
	got, err := f.interceptor.Intercept(context.Background(), compensable(),
		[]interface{}{api.NewTransactionContext(xid, api.Confirming)},
		func(ctx context.Context) (interface{}, error) {
			t.Fatal("business must not run during confirming")
			return nil, nil
		})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1, f.confirmed)

	_, err = f.store.Get(context.Background(), xid)
	assert.ErrorIs(t, err, txmanager.ErrTransactionNotExist)
}

func TestProviderCancellingDrivesBranch(t *testing.T) {
	f := newFixture(t)
	xid := api.NewXid()

	_, err := f.interceptor.Intercept(context.Background(), compensable(),
		[]interface{}{api.NewTransactionContext(xid, api.Trying)},
		f.enlistingBusiness(t, nil, nil))
	require.NoError(t, err)

	_, err = f.interceptor.Intercept(context.Background(), compensable(),
		[]interface{}{api.NewTransactionContext(xid, api.Cancelling)},
		func(ctx context.Context) (interface{}, error) {
			t.Fatal("business must not run during cancelling")
			return nil, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1, f.cancelled)

	_, err = f.store.Get(context.Background(), xid)
	assert.ErrorIs(t, err, txmanager.ErrTransactionNotExist)
}

func TestProviderRedeliveryAfterCompletionIsSwallowed(t *testing.T) {
	f := newFixture(t)
	// 分支记录已被先前的投递删除，重复投递幂等成功
	got, err := f.interceptor.Intercept(context.Background(), compensable(),
		[]interface{}{api.NewTransactionContext(api.NewXid(), api.Confirming)},
		func(ctx context.Context) (interface{}, error) {
			t.Fatal("business must not run")
			return nil, nil
		})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, f.confirmed)
}

func TestNestedCompensableJoinsActiveTransaction(t *testing.T) {
	f := newFixture(t)
	var innerRan bool
	business := func(ctx context.Context) (interface{}, error) {
		// 嵌套的 Required 可补偿调用按普通逻辑执行，不再开启新事务
		_, err := f.interceptor.Intercept(ctx, compensable(), nil, func(ctx context.Context) (interface{}, error) {
			innerRan = true
			assert.Equal(t, 1, txmanager.SessionDepth(ctx))
			return f.enlistingBusiness(t, nil, nil)(ctx)
		})
		return nil, err
	}

	_, err := f.interceptor.Intercept(context.Background(), compensable(), nil, business)
	require.NoError(t, err)
	assert.True(t, innerRan)
	assert.Equal(t, 1, f.confirmed)
}
