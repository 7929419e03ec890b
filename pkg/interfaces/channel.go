package interfaces

import (
	"context"

	"github.com/dechat/go-dechat/pkg/types"
)

// Draft 待发送消息
type Draft struct {
	// Content 明文内容
	Content string

	// Type 消息类型（空值按 text 处理）
	Type types.MessageType

	// Attachments 附件（内容寻址 ID）
	Attachments []types.Attachment

	// ReplyTo 回复引用
	ReplyTo *types.ReplyRef
}

// MessageHandler 消息更新回调
//
// 同一逻辑状态保证只回调一次（状态摘要去重）。
type MessageHandler func(msg *types.Message)

// ReactionHandler 反应视图回调，整张反应表按消息重建后送达
type ReactionHandler func(messageID string, reactions types.ReactionMap)

// ChannelMessaging 频道消息协议
type ChannelMessaging interface {
	// Send 发送消息；不等待订阅回显，直接返回完整消息
	Send(ctx context.Context, channelID string, draft Draft) (*types.Message, error)

	// SubscribeMessages 订阅频道消息（发送/编辑/删除）
	SubscribeMessages(channelID string, handler MessageHandler) (CancelFunc, error)

	// History 限时全量扫描消息子图，按时间升序返回最后 limit 条
	History(ctx context.Context, channelID string, limit int) ([]*types.Message, error)

	// Edit 编辑自己的消息；旧内容追加进编辑历史并重新签名
	Edit(ctx context.Context, channelID, messageID, newContent string) (*types.Message, error)

	// Delete 软删除；作者本人或通过 Moderation 检查的管理者可执行
	Delete(ctx context.Context, channelID, messageID string) error

	// AddReaction 添加反应
	AddReaction(ctx context.Context, messageID, emoji string) error

	// RemoveReaction 移除反应（写墓碑）
	RemoveReaction(ctx context.Context, messageID, emoji string) error

	// Reactions 读取一条消息当前的完整反应视图
	Reactions(ctx context.Context, messageID string) (types.ReactionMap, error)

	// SubscribeReactions 订阅频道内所有已知消息的反应变化；
	// 新消息出现时懒惰展开下层订阅
	SubscribeReactions(channelID string, handler ReactionHandler) (CancelFunc, error)
}
