// Package recovery 周期性重新驱动滞留事务。与实时完成路径的并发竞争
// 通过存储的乐观锁消解，参与方的幂等性保证 at-least-once 投递安全。
package recovery

import (
	"context"
	"time"

	"tcc/api"
	"tcc/log"
	"tcc/txmanager"
)

type Recovery struct {
	ctx        context.Context
	stop       context.CancelFunc
	opts       *Options
	store      txmanager.TransactionStore
	terminator *txmanager.Terminator
}

// NewRecovery 创建恢复任务并启动后台轮询。
// terminator 应复用事务管理器的注册表，保证恢复路径能解析到同一批 handler
func NewRecovery(store txmanager.TransactionStore, terminator *txmanager.Terminator, opts ...Option) *Recovery {
	ctx, cancel := context.WithCancel(context.Background())
	recovery := &Recovery{
		ctx:        ctx,
		stop:       cancel,
		opts:       &Options{},
		store:      store,
		terminator: terminator,
	}
	for _, opt := range opts {
		opt(recovery.opts)
	}
	repair(recovery.opts)

	go recovery.run()
	return recovery
}

func (r *Recovery) Stop() {
	r.stop()
}

func (r *Recovery) run() {
	var tick time.Duration
	var err error
	for {
		if err == nil {
			tick = r.opts.MonitorTick
		} else {
			// 出现失败，tick 退避
			tick = r.backOffTick(tick)
		}
		select {
		case <-r.ctx.Done():
			return
		case <-time.After(tick):
			err = r.Sweep(r.ctx)
			if err != nil {
				log.Errorf("recovery sweep failed, err: %v", err)
			}
		}
	}
}

func (r *Recovery) backOffTick(tick time.Duration) time.Duration {
	if tick > r.opts.MonitorTick<<3 {
		return tick
	}
	return tick << 1
}

// Sweep 执行一轮恢复：捞出滞留事务逐笔推进，返回首个错误但不中断其余事务
func (r *Recovery) Sweep(ctx context.Context) error {
	stale, err := r.store.ListStale(ctx, time.Now().Add(-r.opts.StaleThreshold), r.opts.MaxRetriedCount)
	if err != nil {
		return err
	}

	var firstErr error
	for _, tx := range stale {
		if err := r.recover(ctx, tx); err != nil {
			log.Errorf("recover transaction failed, xid: %s, status: %s, err: %v", tx.Xid, tx.Status, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// recover 推进单笔滞留事务：
// Confirming 事务继续提交；Cancelling 事务以及停留在 Trying 的根事务回滚
// （根事务停在 Trying 说明发起方在决策前崩溃）；停留在 Trying 的分支事务
// 不动，等待根事务的决策传播过来
func (r *Recovery) recover(ctx context.Context, tx *txmanager.Transaction) error {
	tx.AddRetriedCount()
	if err := r.store.Update(ctx, tx); err != nil {
		// 乐观锁冲突说明有并发流程正在驱动该事务，放弃本轮
		return err
	}

	switch {
	case tx.Status == api.Confirming:
		if err := tx.Commit(ctx, r.terminator); err != nil {
			return err
		}
		return r.store.Delete(ctx, tx)
	case tx.Status == api.Cancelling || tx.Type == api.TypeRoot:
		tx.ChangeStatus(api.Cancelling)
		if err := r.store.Update(ctx, tx); err != nil {
			return err
		}
		if err := tx.Rollback(ctx, r.terminator); err != nil {
			return err
		}
		return r.store.Delete(ctx, tx)
	}
	return nil
}
