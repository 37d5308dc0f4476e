package interceptor

type Options struct {
	// 延迟回滚错误集合，errors.Is 逐个匹配
	DelayCancelErrors []error
	// 自定义延迟回滚判定，与错误集合互补
	DelayCancelMatcher func(error) bool
}

type Option func(*Options)

func WithDelayCancelErrors(errs ...error) Option {
	return func(o *Options) {
		o.DelayCancelErrors = append(o.DelayCancelErrors, errs...)
	}
}

func WithDelayCancelMatcher(match func(error) bool) Option {
	return func(o *Options) {
		o.DelayCancelMatcher = match
	}
}
