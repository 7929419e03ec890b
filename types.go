package dechat

import (
	"github.com/dechat/go-dechat/pkg/interfaces"
	"github.com/dechat/go-dechat/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              类型别名
// ════════════════════════════════════════════════════════════════════════════
//
// 常用类型的根级别名，调用方无需引入 pkg/types 与 pkg/interfaces。

// 频道消息
type (
	// Draft 待发送的消息草稿
	Draft = interfaces.Draft

	// Message 频道消息记录
	Message = types.Message

	// Attachment 内容寻址附件引用
	Attachment = types.Attachment

	// ReplyRef 回复引用
	ReplyRef = types.ReplyRef

	// ReactionMap 表情符号 → 回应者公钥列表
	ReactionMap = types.ReactionMap

	// MessageHandler 频道消息回调
	MessageHandler = interfaces.MessageHandler

	// ReactionHandler 回应快照回调
	ReactionHandler = interfaces.ReactionHandler
)

// 在场
type (
	// Status 在场状态
	Status = types.Status

	// PresenceUpdate 在场变化通知
	PresenceUpdate = interfaces.PresenceUpdate

	// PresenceHandler 在场变化回调
	PresenceHandler = interfaces.PresenceHandler

	// TypingHandler 输入指示回调
	TypingHandler = interfaces.TypingHandler
)

// 私信
type (
	// Conversation 私信会话
	Conversation = types.Conversation

	// PlainDirectMessage 解密后的私信
	PlainDirectMessage = types.PlainDirectMessage

	// DirectMessageHandler 私信回调
	DirectMessageHandler = interfaces.DirectMessageHandler
)

// 语音
type (
	// Call 进行中的通话
	Call = interfaces.Call

	// CallEvent 通话事件
	CallEvent = interfaces.CallEvent

	// Tier 语音传输层级
	Tier = types.Tier

	// VoiceParticipant 通话名册记录
	VoiceParticipant = types.VoiceParticipant
)

// 连通性
type (
	// ConnectionState 连接状态
	ConnectionState = interfaces.ConnectionState

	// ConnectionEvent 连接状态变化事件
	ConnectionEvent = interfaces.ConnectionEvent
)

// 在场状态常量
const (
	StatusOnline  = types.StatusOnline
	StatusIdle    = types.StatusIdle
	StatusDND     = types.StatusDND
	StatusOffline = types.StatusOffline
)

// 语音层级常量
const (
	TierMesh  = types.TierMesh
	TierRelay = types.TierRelay
)
