package interfaces

import (
	"context"

	"github.com/dechat/go-dechat/pkg/types"
)

// CallEventType 通话事件类型
type CallEventType string

// 通话事件常量
const (
	// CallEventTierSelected 层级已选定
	CallEventTierSelected CallEventType = "tier-selected"

	// CallEventCapacityFallback 超出网状容量仍回退网状（警告，通话继续）
	CallEventCapacityFallback CallEventType = "capacity-fallback"

	// CallEventPeerJoined 远端参与者加入
	CallEventPeerJoined CallEventType = "peer-joined"

	// CallEventPeerLeft 远端参与者离开（显式墓碑或心跳超限）
	CallEventPeerLeft CallEventType = "peer-left"

	// CallEventPeerUpdated 远端参与者状态变化（静音/发言等）
	CallEventPeerUpdated CallEventType = "peer-updated"

	// CallEventPeerConnected 与远端的媒体连接建立
	CallEventPeerConnected CallEventType = "peer-connected"

	// CallEventPeerFailed 与远端的媒体连接失败
	CallEventPeerFailed CallEventType = "peer-failed"

	// CallEventSpeaking 本端或远端发言状态（去抖后）变化
	CallEventSpeaking CallEventType = "speaking"

	// CallEventCommand 收到针对本端的控制命令
	CallEventCommand CallEventType = "command"
)

// CallEvent 通话事件
type CallEvent struct {
	// Type 事件类型
	Type CallEventType

	// PeerKey 相关参与者公钥（本端事件为空）
	PeerKey string

	// Participant 事件发生后的参与者快照
	Participant *types.VoiceParticipant

	// Tier 当前层级（tier-selected 事件携带）
	Tier types.Tier

	// Speaking 发言状态（speaking 事件携带）
	Speaking bool

	// Command 控制命令（command 事件携带）
	Command *types.VoiceCommand
}

// Call 一次已加入的语音通话
//
// 所有通话资源（连接、媒体轨、定时器、图订阅）绑定在本对象上，
// Leave 必须在下一次 Join 处理之前完成全部拆除。
type Call interface {
	// Channel 通话频道
	Channel() string

	// Tier 实际选定的拓扑层级
	Tier() types.Tier

	// Participants 当前存活参与者快照
	Participants() []*types.VoiceParticipant

	// Events 通话事件流
	Events() <-chan CallEvent

	// SetMuted 自我静音
	SetMuted(ctx context.Context, muted bool) error

	// SetDeafened 拒听（隐含静音）
	SetDeafened(ctx context.Context, deafened bool) error

	// SetInputDevice 切换采集设备
	SetInputDevice(deviceID string) error

	// SetOutputDevice 切换播放设备
	SetOutputDevice(deviceID string) error

	// ServerMute 对目标写入管理端静音命令（由目标客户端自行执行）
	ServerMute(ctx context.Context, targetKey string, muted bool) error

	// Disconnect 对目标写入强制断开命令
	Disconnect(ctx context.Context, targetKey string) error

	// Leave 离开通话并拆除全部本地资源
	Leave(ctx context.Context) error
}

// Voice 语音子系统入口
type Voice interface {
	// Join 加入频道通话；按当前参与者数与中继可用性选择层级
	Join(ctx context.Context, channelID string) (Call, error)
}

// ════════════════════════════════════════════════════════════════════════════
//                              媒体协作接口
// ════════════════════════════════════════════════════════════════════════════

// AudioSource PCM 采集源（48kHz 单声道 int16 帧）
type AudioSource interface {
	// ReadFrame 读取一帧采样；返回写入 frame 的采样数
	ReadFrame(frame []int16) (int, error)

	// Close 关闭采集源
	Close() error
}

// AudioSink PCM 播放汇
type AudioSink interface {
	// WriteFrame 写入一帧采样
	WriteFrame(frame []int16) (int, error)

	// Close 关闭播放汇
	Close() error
}

// MediaProvider 媒体设备协作方（由宿主应用注入）
type MediaProvider interface {
	// OpenCapture 打开采集设备（deviceID 为空表示默认设备）
	OpenCapture(deviceID string) (AudioSource, error)

	// OpenPlayback 打开播放设备
	OpenPlayback(deviceID string) (AudioSink, error)
}
