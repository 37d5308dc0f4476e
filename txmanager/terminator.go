package txmanager

import (
	"context"
	"fmt"
	"sync"

	"tcc/api"
)

// Handler 参与方注册的 confirm / cancel 逻辑。
// args 为 InvocationContext 记录的参数值，事务上下文已由编辑器注入对应槽位
type Handler func(ctx context.Context, args []interface{}) error

// Terminator 延迟调用执行器。启动期注册目标类型与方法名到 Handler 的映射，
// 执行期按 InvocationContext 解析出 Handler，注入事务上下文后发起调用，
// 避免运行期的反射查找。
type Terminator struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewTerminator() *Terminator {
	return &Terminator{
		handlers: make(map[string]Handler),
	}
}

// Register 注册目标方法的执行逻辑，应在启动期完成，重复注册返回错误
func (t *Terminator) Register(targetType string, methodName string, handler Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := handlerKey(targetType, methodName)
	if _, ok := t.handlers[key]; ok {
		return fmt.Errorf("repeat handler: %s", key)
	}
	t.handlers[key] = handler
	return nil
}

func (t *Terminator) resolve(targetType string, methodName string) (Handler, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	handler, ok := t.handlers[handlerKey(targetType, methodName)]
	if !ok {
		return nil, fmt.Errorf("handler: %s not registered", handlerKey(targetType, methodName))
	}
	return handler, nil
}

// Invoke 执行一次延迟调用：解析目标 Handler，按编辑器将事务上下文注入参数，
// 然后发起调用。参与方返回的错误原样向上传播，调用方依据真实原因决定重试策略
func (t *Terminator) Invoke(ctx context.Context, tc *api.TransactionContext, ic *InvocationContext, editorName string) error {
	handler, err := t.resolve(ic.TargetType, ic.MethodName)
	if err != nil {
		return err
	}
	editor, err := api.EditorByName(editorName)
	if err != nil {
		return err
	}

	// 注入时复制一份参数，持久化副本保持原样以便重放
	args := make([]interface{}, len(ic.Args))
	copy(args, ic.Args)
	editor.Set(tc, ic.ParameterTypes, args)

	return handler(ctx, args)
}

func handlerKey(targetType string, methodName string) string {
	return targetType + "." + methodName
}
