package recovery_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcc/api"
	"tcc/recovery"
	"tcc/store/memory"
	"tcc/txmanager"
)

type fixture struct {
	store      *memory.Store
	terminator *txmanager.Terminator
	recovery   *recovery.Recovery
	confirmed  int
	cancelled  int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:      memory.NewStore(),
		terminator: txmanager.NewTerminator(),
	}
	require.NoError(t, f.terminator.Register("orderService", "confirmOrder", func(ctx context.Context, args []interface{}) error {
		f.confirmed++
		return nil
	}))
	require.NoError(t, f.terminator.Register("orderService", "cancelOrder", func(ctx context.Context, args []interface{}) error {
		f.cancelled++
		return nil
	}))
	// 轮询间隔拉长，测试只手动触发 Sweep
	f.recovery = recovery.NewRecovery(f.store, f.terminator,
		recovery.WithMonitorTick(time.Hour),
		recovery.WithStaleThreshold(time.Minute),
		recovery.WithMaxRetriedCount(30))
	t.Cleanup(f.recovery.Stop)
	return f
}

func (f *fixture) seed(t *testing.T, transactionType api.TransactionType, status api.TransactionStatus, lastUpdate time.Time) *txmanager.Transaction {
	t.Helper()
	tx := txmanager.NewTransaction(transactionType)
	tx.ChangeStatus(status)
	tx.LastUpdateTime = lastUpdate
	tx.Enlist(txmanager.NewParticipant(tx.Xid,
		txmanager.NewInvocationContext("orderService", "confirmOrder", []string{api.ContextParameterType}, nil),
		txmanager.NewInvocationContext("orderService", "cancelOrder", []string{api.ContextParameterType}, nil),
		api.DefaultEditorName))
	require.NoError(t, f.store.Create(context.Background(), tx))
	return tx
}

func TestSweepRecommitsConfirmingTransaction(t *testing.T) {
	f := newFixture(t)
	tx := f.seed(t, api.TypeRoot, api.Confirming, time.Now().Add(-10*time.Minute))

	require.NoError(t, f.recovery.Sweep(context.Background()))

	assert.Equal(t, 1, f.confirmed)
	assert.Zero(t, f.cancelled)
	_, err := f.store.Get(context.Background(), tx.Xid)
	assert.ErrorIs(t, err, txmanager.ErrTransactionNotExist)
}

func TestSweepCancelsCancellingTransaction(t *testing.T) {
	f := newFixture(t)
	tx := f.seed(t, api.TypeBranch, api.Cancelling, time.Now().Add(-10*time.Minute))

	require.NoError(t, f.recovery.Sweep(context.Background()))

	assert.Equal(t, 1, f.cancelled)
	_, err := f.store.Get(context.Background(), tx.Xid)
	assert.ErrorIs(t, err, txmanager.ErrTransactionNotExist)
}

func TestSweepCancelsTimedOutRootTrying(t *testing.T) {
	f := newFixture(t)
	// 根事务停留在 Trying，说明发起方在决策前崩溃，按取消处理
	tx := f.seed(t, api.TypeRoot, api.Trying, time.Now().Add(-10*time.Minute))

	require.NoError(t, f.recovery.Sweep(context.Background()))

	assert.Equal(t, 1, f.cancelled)
	assert.Zero(t, f.confirmed)
	_, err := f.store.Get(context.Background(), tx.Xid)
	assert.ErrorIs(t, err, txmanager.ErrTransactionNotExist)
}

func TestSweepLeavesBranchTryingForRoot(t *testing.T) {
	f := newFixture(t)
	tx := f.seed(t, api.TypeBranch, api.Trying, time.Now().Add(-10*time.Minute))

	require.NoError(t, f.recovery.Sweep(context.Background()))

	assert.Zero(t, f.confirmed)
	assert.Zero(t, f.cancelled)

	// 记录保留，重试次数已被记账
	stored, err := f.store.Get(context.Background(), tx.Xid)
	require.NoError(t, err)
	assert.Equal(t, api.Trying, stored.Status)
	assert.Equal(t, 1, stored.RetriedCount)
}

func TestSweepSkipsFreshAndExhaustedTransactions(t *testing.T) {
	f := newFixture(t)
	fresh := f.seed(t, api.TypeRoot, api.Confirming, time.Now())

	exhausted := txmanager.NewTransaction(api.TypeRoot)
	exhausted.ChangeStatus(api.Confirming)
	exhausted.LastUpdateTime = time.Now().Add(-10 * time.Minute)
	exhausted.RetriedCount = 30
	require.NoError(t, f.store.Create(context.Background(), exhausted))

	require.NoError(t, f.recovery.Sweep(context.Background()))

	assert.Zero(t, f.confirmed)
	_, err := f.store.Get(context.Background(), fresh.Xid)
	require.NoError(t, err)
	_, err = f.store.Get(context.Background(), exhausted.Xid)
	require.NoError(t, err)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.terminator.Register("inventoryService", "confirmStock", func(ctx context.Context, args []interface{}) error {
		return assert.AnError
	}))

	failing := txmanager.NewTransaction(api.TypeRoot)
	failing.ChangeStatus(api.Confirming)
	failing.LastUpdateTime = time.Now().Add(-20 * time.Minute)
	failing.Enlist(txmanager.NewParticipant(failing.Xid,
		txmanager.NewInvocationContext("inventoryService", "confirmStock", []string{api.ContextParameterType}, nil),
		txmanager.NewInvocationContext("inventoryService", "cancelStock", []string{api.ContextParameterType}, nil),
		api.DefaultEditorName))
	require.NoError(t, f.store.Create(context.Background(), failing))

	ok := f.seed(t, api.TypeRoot, api.Confirming, time.Now().Add(-10*time.Minute))

	err := f.recovery.Sweep(context.Background())
	assert.ErrorIs(t, err, assert.AnError)

	// 失败的事务保留待下一轮，其余事务正常推进
	_, getErr := f.store.Get(context.Background(), failing.Xid)
	require.NoError(t, getErr)
	_, getErr = f.store.Get(context.Background(), ok.Xid)
	assert.ErrorIs(t, getErr, txmanager.ErrTransactionNotExist)
}
