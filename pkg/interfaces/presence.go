package interfaces

import (
	"context"

	"github.com/dechat/go-dechat/pkg/types"
)

// PresenceUpdate 有效在线状态更新
//
// Status 已按心跳新鲜度重算，存储的状态不直接透出。
type PresenceUpdate struct {
	// PublicKey 所属身份
	PublicKey string

	// Status 有效状态
	Status types.Status

	// LastSeen 最后心跳（毫秒）
	LastSeen int64
}

// PresenceHandler 在线状态回调
type PresenceHandler func(update PresenceUpdate)

// TypingHandler 输入状态回调（已应用过期规则）
type TypingHandler func(channelID, publicKey string, typing bool)

// Presence 在线状态协议
//
// 心跳是进程级单一资源：同一会话无论多少订阅者只有一个心跳定时器。
type Presence interface {
	// SetStatus 写入状态并启动（或重置）心跳
	SetStatus(ctx context.Context, status types.Status) error

	// GoOffline 写入最终 offline 状态并取消心跳；
	// 所有优雅退出路径都必须调用
	GoOffline(ctx context.Context) error

	// SubscribePresence 订阅一组身份的有效状态
	SubscribePresence(publicKeys []string, handler PresenceHandler) (CancelFunc, error)

	// SetTyping 写入输入状态
	SetTyping(ctx context.Context, channelID string, typing bool) error

	// SubscribeTyping 订阅频道输入状态（含超时视为停止）
	SubscribeTyping(channelID string, handler TypingHandler) (CancelFunc, error)
}
