package interceptor

import "tcc/api"

// MethodRole 被拦截方法在事务中的角色
type MethodRole int

const (
	// RoleNormal 普通方法，不做事务处理。嵌套在已激活事务内的可补偿调用
	// 也按普通逻辑执行，其登记的参与者挂到已激活的事务上
	RoleNormal MethodRole = iota
	// RoleRoot 发起根事务
	RoleRoot
	// RoleProvider 服务提供者，融入上游传播过来的事务
	RoleProvider
)

func (r MethodRole) String() string {
	switch r {
	case RoleRoot:
		return "root"
	case RoleProvider:
		return "provider"
	}
	return "normal"
}

// CalculateMethodRole 计算方法角色，纯函数：
// Required 且当前无事务、无上下文，或者 RequiresNew，发起根事务；
// Required / Mandatory 且当前无事务但携带了上下文，作为服务提供者融入事务；
// 其余情况按普通方法执行
func CalculateMethodRole(propagation api.Propagation, isTransactionActive bool, tc *api.TransactionContext) MethodRole {
	if (propagation == api.Required && !isTransactionActive && tc == nil) ||
		propagation == api.RequiresNew {
		return RoleRoot
	}
	if (propagation == api.Required || propagation == api.Mandatory) &&
		!isTransactionActive && tc != nil {
		return RoleProvider
	}
	return RoleNormal
}

// IsLegalTransactionContext Mandatory 传播级别要求当前已有事务或携带上下文，
// 违反时属于调用方编程错误，在任何状态变更之前失败
func IsLegalTransactionContext(isTransactionActive bool, propagation api.Propagation, tc *api.TransactionContext) bool {
	if propagation == api.Mandatory && !isTransactionActive && tc == nil {
		return false
	}
	return true
}
