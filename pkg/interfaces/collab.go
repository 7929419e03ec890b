package interfaces

import "context"

// 外部协作子系统的窄接口。内容存储、社区权限与审计
// 不在本核心范围内，只消费它们暴露的契约。

// ContentResolver 内容寻址存储协作方
type ContentResolver interface {
	// ResolveContentBytes 按内容 ID 取回字节
	ResolveContentBytes(ctx context.Context, contentID string) ([]byte, error)
}

// Moderation 社区权限协作方
type Moderation interface {
	// CanModerate 判断 actor 是否可对 target 的内容执行管理操作
	CanModerate(actorKey, targetKey string) bool
}

// AuditEntry 审计条目
type AuditEntry struct {
	// Action 动作名
	Action string

	// ActorKey 执行者
	ActorKey string

	// TargetKey 目标身份
	TargetKey string

	// Detail 补充信息
	Detail string

	// At 毫秒时间戳
	At int64
}

// AuditLog 审计协作方
type AuditLog interface {
	// Record 记录一条审计
	Record(entry AuditEntry)
}

// ════════════════════════════════════════════════════════════════════════════
//                              Nop 实现
// ════════════════════════════════════════════════════════════════════════════

// NopModeration 拒绝一切管理操作
type NopModeration struct{}

// CanModerate 恒为 false
func (NopModeration) CanModerate(_, _ string) bool { return false }

// NopAuditLog 丢弃审计条目
type NopAuditLog struct{}

// Record 空操作
func (NopAuditLog) Record(_ AuditEntry) {}
