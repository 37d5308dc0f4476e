package txmanager

type Options struct {
	// 异步 confirm / cancel 的工作协程数
	Workers int
	// 异步任务队列长度
	QueueSize int
	// 自定义异步派发实现，为空时使用内置工作池
	Executor Executor
}

type Option func(*Options)

func WithWorkers(workers int) Option {
	if workers <= 0 {
		workers = 4
	}
	return func(o *Options) {
		o.Workers = workers
	}
}

func WithQueueSize(queueSize int) Option {
	if queueSize <= 0 {
		queueSize = 64
	}
	return func(o *Options) {
		o.QueueSize = queueSize
	}
}

func WithExecutor(executor Executor) Option {
	return func(o *Options) {
		o.Executor = executor
	}
}

func repair(o *Options) {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
}
