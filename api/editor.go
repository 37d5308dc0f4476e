package api

import "fmt"

// 事务上下文编辑器名称，随 Participant 一起持久化，重启后按名称还原
const (
	// DefaultEditorName 默认编辑器：在调用参数中按声明类型定位事务上下文
	DefaultEditorName = "default"
	// NilEditorName 空编辑器：上下文由带外方式（如 RPC 隐式参数）传递，不改动参数
	NilEditorName = "nil"
)

// ContextParameterType InvocationContext.ParameterTypes 中事务上下文参数的类型标识
const ContextParameterType = "api.TransactionContext"

// TransactionContextEditor 事务上下文编辑器：
// Get 从调用参数中提取事务上下文；Set 将事务上下文写回参数中对应的槽位
type TransactionContextEditor interface {
	Get(args []interface{}) *TransactionContext
	Set(tc *TransactionContext, parameterTypes []string, args []interface{})
}

// DefaultTransactionContextEditor 扫描调用参数定位事务上下文
type DefaultTransactionContextEditor struct{}

func (DefaultTransactionContextEditor) Get(args []interface{}) *TransactionContext {
	for _, arg := range args {
		if tc, ok := arg.(*TransactionContext); ok && tc != nil {
			return tc
		}
	}
	return nil
}

func (DefaultTransactionContextEditor) Set(tc *TransactionContext, parameterTypes []string, args []interface{}) {
	if position := contextParamPosition(parameterTypes); position >= 0 && position < len(args) {
		args[position] = tc
		return
	}
	// 参数类型未声明时退化为按现有参数值定位
	for i, arg := range args {
		if _, ok := arg.(*TransactionContext); ok {
			args[i] = tc
			return
		}
	}
}

// NilTransactionContextEditor 上下文带外传递，不读取也不注入参数
type NilTransactionContextEditor struct{}

func (NilTransactionContextEditor) Get(args []interface{}) *TransactionContext {
	return nil
}

func (NilTransactionContextEditor) Set(tc *TransactionContext, parameterTypes []string, args []interface{}) {
}

// EditorByName 按名称还原事务上下文编辑器
func EditorByName(name string) (TransactionContextEditor, error) {
	switch name {
	case DefaultEditorName, "":
		return DefaultTransactionContextEditor{}, nil
	case NilEditorName:
		return NilTransactionContextEditor{}, nil
	}
	return nil, fmt.Errorf("unknown transaction context editor: %s", name)
}

func contextParamPosition(parameterTypes []string) int {
	for i, pt := range parameterTypes {
		if pt == ContextParameterType {
			return i
		}
	}
	return -1
}
