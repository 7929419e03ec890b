package interfaces

import (
	"context"

	"github.com/dechat/go-dechat/pkg/types"
)

// DirectMessageHandler 私信回调
//
// 只送达解密且验签成功的消息；任一失败都静默丢弃，
// 绝不透出部分解密的内容。
type DirectMessageHandler func(msg *types.PlainDirectMessage)

// DMMessaging 端到端加密私信协议
type DMMessaging interface {
	// Start 创建（或返回已有的）与对方的会话；
	// 元数据写入要求确认，失败作为错误传播
	Start(ctx context.Context, recipientKey string) (*types.Conversation, error)

	// Send 加密并发送私信
	Send(ctx context.Context, recipientKey, content string) (*types.PlainDirectMessage, error)

	// Subscribe 订阅会话内的新私信
	Subscribe(conversationID string, handler DirectMessageHandler) (CancelFunc, error)

	// History 解密并返回会话历史，按时间升序最后 limit 条
	History(ctx context.Context, conversationID string, limit int) ([]*types.PlainDirectMessage, error)

	// Conversations 合并私有指针与公开收件箱两个来源，
	// 按会话 ID 去重；收件箱条目经参与者校验后才被采纳
	Conversations(ctx context.Context) ([]*types.Conversation, error)
}
