package types

import "time"

// Tier 语音通话拓扑层级
type Tier string

// 层级常量
const (
	// TierMesh 全网状点对点拓扑
	TierMesh Tier = "mesh"

	// TierRelay 经选择性转发服务的星形拓扑
	TierRelay Tier = "relay"
)

// VoiceParticipant 语音参与者记录
//
// 加入时创建，周期心跳，离开时写 leftAt 墓碑；
// 心跳超限的条目即使没有墓碑也按已离开处理。
type VoiceParticipant struct {
	// PublicKey 参与者身份
	PublicKey string `json:"publicKey"`

	// JoinedAt 加入时间（毫秒）
	JoinedAt int64 `json:"joinedAt"`

	// LeftAt 离开墓碑
	LeftAt *Tombstone `json:"leftAt,omitempty"`

	// Heartbeat 最后心跳时间（毫秒）
	Heartbeat int64 `json:"heartbeat"`

	// Muted 自我静音
	Muted bool `json:"muted"`

	// Deafened 拒听（隐含静音）
	Deafened bool `json:"deafened"`

	// Speaking 正在发言（去抖后的状态）
	Speaking bool `json:"speaking"`

	// ServerMuted 被管理端静音
	ServerMuted bool `json:"serverMuted"`
}

// HasLeft 是否已显式离开
//
// leftAt 墓碑存在且晚于 joinedAt 才算离开（重新加入会刷新 joinedAt）。
func (v *VoiceParticipant) HasLeft() bool {
	return v.LeftAt != nil && v.LeftAt.At >= v.JoinedAt
}

// Stale 心跳是否超限
func (v *VoiceParticipant) Stale(now time.Time, bound time.Duration) bool {
	return now.UnixMilli()-v.Heartbeat > bound.Milliseconds()
}

// Live 是否应视为在通话中
func (v *VoiceParticipant) Live(now time.Time, staleBound time.Duration) bool {
	return !v.HasLeft() && !v.Stale(now, staleBound)
}

// SignalType 信令类型
type SignalType string

// 信令类型常量
const (
	// SignalOffer SDP offer
	SignalOffer SignalType = "offer"

	// SignalAnswer SDP answer
	SignalAnswer SignalType = "answer"

	// SignalCandidate ICE candidate
	SignalCandidate SignalType = "candidate"
)

// SignalingEnvelope WebRTC 信令信封
//
// 以唯一 ID 追加写入而非覆盖：多条 ICE candidate 必须全部送达。
type SignalingEnvelope struct {
	// Type 信令类型
	Type SignalType `json:"type"`

	// Data SDP 或序列化的 ICE candidate
	Data string `json:"data"`

	// From 发送方完整公钥
	From string `json:"from"`

	// Channel 通话频道
	Channel string `json:"channel,omitempty"`

	// Timestamp 发送时间（毫秒）
	Timestamp int64 `json:"timestamp"`
}

// VoiceCommandType 语音控制命令类型
type VoiceCommandType string

// 控制命令常量
const (
	// CommandServerMute 管理端静音
	CommandServerMute VoiceCommandType = "server-mute"

	// CommandServerUnmute 解除管理端静音
	CommandServerUnmute VoiceCommandType = "server-unmute"

	// CommandDisconnect 强制断开
	CommandDisconnect VoiceCommandType = "force-disconnect"
)

// VoiceCommand 写入共享图的语音控制命令
//
// 没有中心执行者：命令由目标客户端自行观察并在本端执行。
type VoiceCommand struct {
	// Type 命令类型
	Type VoiceCommandType `json:"type"`

	// Target 目标公钥
	Target string `json:"target"`

	// Issuer 签发者公钥
	Issuer string `json:"issuer"`

	// Channel 通话频道
	Channel string `json:"channel"`

	// At 签发时间（毫秒）
	At int64 `json:"at"`
}
