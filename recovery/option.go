package recovery

import "time"

type Options struct {
	// 轮询任务执行时间间隔
	MonitorTick time.Duration
	// 事务滞留判定阈值：最后更新时间早于该阈值的事务才会被重新驱动
	StaleThreshold time.Duration
	// 最大重试次数，超过后不再驱动，留给人工介入
	MaxRetriedCount int
}

type Option func(*Options)

func WithMonitorTick(tick time.Duration) Option {
	if tick <= 0 {
		tick = 10 * time.Second
	}
	return func(o *Options) {
		o.MonitorTick = tick
	}
}

func WithStaleThreshold(threshold time.Duration) Option {
	if threshold <= 0 {
		threshold = 2 * time.Minute
	}
	return func(o *Options) {
		o.StaleThreshold = threshold
	}
}

func WithMaxRetriedCount(count int) Option {
	if count <= 0 {
		count = 30
	}
	return func(o *Options) {
		o.MaxRetriedCount = count
	}
}

func repair(o *Options) {
	if o.MonitorTick <= 0 {
		o.MonitorTick = 10 * time.Second
	}
	if o.StaleThreshold <= 0 {
		o.StaleThreshold = 2 * time.Minute
	}
	if o.MaxRetriedCount <= 0 {
		o.MaxRetriedCount = 30
	}
}
