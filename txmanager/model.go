package txmanager

import (
	"context"
	"time"

	"tcc/api"
)

// InvocationContext 延迟调用上下文，记录目标类型、方法名、参数类型与参数值。
// 完全可序列化，持久化后即使进程重启也能重放 confirm / cancel 调用。
type InvocationContext struct {
	TargetType     string        `json:"targetType"`
	MethodName     string        `json:"methodName"`
	ParameterTypes []string      `json:"parameterTypes"`
	Args           []interface{} `json:"args"`
}

func NewInvocationContext(targetType string, methodName string, parameterTypes []string, args ...interface{}) *InvocationContext {
	return &InvocationContext{
		TargetType:     targetType,
		MethodName:     methodName,
		ParameterTypes: parameterTypes,
		Args:           args,
	}
}

// Participant 事务参与者，通过 Xid 关联所属事务。
// confirm / cancel 阶段使用参与者的事务编号与远程分支事务关联，实现提交与回滚。
type Participant struct {
	Xid               api.Xid            `json:"xid"`
	ConfirmInvocation *InvocationContext `json:"confirmInvocation"`
	CancelInvocation  *InvocationContext `json:"cancelInvocation"`
	// 事务上下文编辑器名称，见 api.EditorByName
	Editor string `json:"editor"`
}

func NewParticipant(xid api.Xid, confirm *InvocationContext, cancel *InvocationContext, editor string) *Participant {
	return &Participant{
		Xid:               xid,
		ConfirmInvocation: confirm,
		CancelInvocation:  cancel,
		Editor:            editor,
	}
}

// SetXid 参与者先于所属事务构造时，后置关联事务编号
func (p *Participant) SetXid(xid api.Xid) {
	p.Xid = xid
}

// Commit 提交参与者自己的事务
func (p *Participant) Commit(ctx context.Context, terminator *Terminator) error {
	return terminator.Invoke(ctx, api.NewTransactionContext(p.Xid, api.Confirming), p.ConfirmInvocation, p.Editor)
}

// Rollback 回滚参与者自己的事务
func (p *Participant) Rollback(ctx context.Context, terminator *Terminator) error {
	return terminator.Invoke(ctx, api.NewTransactionContext(p.Xid, api.Cancelling), p.CancelInvocation, p.Editor)
}

// Transaction 事务聚合。状态只会从 Trying 单向推进到 Confirming 或 Cancelling，
// 事务完成后记录即被删除，不存在终态枚举。
type Transaction struct {
	Xid api.Xid `json:"xid"`
	// 事务状态
	Status api.TransactionStatus `json:"status"`
	// 事务类型：根事务 / 分支事务
	Type api.TransactionType `json:"transactionType"`
	// 参与者集合，按加入顺序驱动
	Participants []*Participant `json:"participants"`
	// 恢复任务的重试次数
	RetriedCount int       `json:"retriedCount"`
	CreateTime   time.Time `json:"createTime"`
	// 最后更新时间，恢复任务依据该字段判断事务是否滞留
	LastUpdateTime time.Time `json:"lastUpdateTime"`
	// 版本号，用于乐观锁更新事务
	Version int64 `json:"version"`
	// 附带属性映射，供传输层扩展使用
	Attachments map[string]interface{} `json:"attachments"`
}

// NewTransaction 创建指定类型的事务，分配全新的事务编号
func NewTransaction(transactionType api.TransactionType) *Transaction {
	now := time.Now()
	return &Transaction{
		Xid:            api.NewXid(),
		Status:         api.Trying,
		Type:           transactionType,
		CreateTime:     now,
		LastUpdateTime: now,
		Version:        1,
		Attachments:    make(map[string]interface{}),
	}
}

// NewBranchTransaction 依据事务上下文创建分支事务，复用根事务的编号
func NewBranchTransaction(tc *api.TransactionContext) *Transaction {
	now := time.Now()
	return &Transaction{
		Xid:            tc.Xid,
		Status:         api.Trying,
		Type:           api.TypeBranch,
		CreateTime:     now,
		LastUpdateTime: now,
		Version:        1,
		Attachments:    make(map[string]interface{}),
	}
}

// Enlist 添加参与者
func (t *Transaction) Enlist(participant *Participant) {
	t.Participants = append(t.Participants, participant)
}

// ChangeStatus 推进事务状态
func (t *Transaction) ChangeStatus(status api.TransactionStatus) {
	t.Status = status
}

// AddRetriedCount 恢复任务推进事务前递增重试次数
func (t *Transaction) AddRetriedCount() {
	t.RetriedCount++
}

// Commit 按加入顺序提交所有参与者
func (t *Transaction) Commit(ctx context.Context, terminator *Terminator) error {
	for _, participant := range t.Participants {
		if err := participant.Commit(ctx, terminator); err != nil {
			return err
		}
	}
	return nil
}

// Rollback 按加入顺序回滚所有参与者
func (t *Transaction) Rollback(ctx context.Context, terminator *Terminator) error {
	for _, participant := range t.Participants {
		if err := participant.Rollback(ctx, terminator); err != nil {
			return err
		}
	}
	return nil
}
