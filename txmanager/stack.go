package txmanager

import "context"

// 当前事务栈随调用链的 context 传递，一条调用链独占一个栈，
// 并发请求互不共享，因此无需加锁。
// RequiresNew 场景下栈内可能同时存在多个事务，后创建的先完成。

type sessionKey struct{}

type session struct {
	stack []*Transaction
}

// WithSession 在 context 中挂载事务栈，应在一条调用链的最外层调用一次。
// 已存在事务栈时原样复用，嵌套调用共享同一个栈。
func WithSession(ctx context.Context) context.Context {
	if sessionFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, &session{})
}

func sessionFrom(ctx context.Context) *session {
	s, _ := ctx.Value(sessionKey{}).(*session)
	return s
}

func (s *session) push(tx *Transaction) {
	s.stack = append(s.stack, tx)
}

func (s *session) pop() *Transaction {
	if len(s.stack) == 0 {
		return nil
	}
	tx := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return tx
}

func (s *session) peek() *Transaction {
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

// SessionDepth 返回当前调用链上事务栈的深度
func SessionDepth(ctx context.Context) int {
	s := sessionFrom(ctx)
	if s == nil {
		return 0
	}
	return len(s.stack)
}
