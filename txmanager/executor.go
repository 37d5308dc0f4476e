package txmanager

import "context"

// Executor 异步派发能力：提交成功即返回，任务在后台执行；
// 提交失败需要同步反馈给调用方
type Executor interface {
	Submit(task func()) error
}

// pool 有界工作池，队列满时提交失败而不是阻塞调用方
type pool struct {
	tasks chan func()
}

func newPool(ctx context.Context, workers int, queueSize int) *pool {
	p := &pool{
		tasks: make(chan func(), queueSize),
	}
	for i := 0; i < workers; i++ {
		go p.work(ctx)
	}
	return p
}

func (p *pool) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.tasks:
			task()
		}
	}
}

func (p *pool) Submit(task func()) error {
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrExecutorOverloaded
	}
}
