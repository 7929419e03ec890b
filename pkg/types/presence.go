package types

import "time"

// Status 在线状态
type Status string

// 在线状态常量
const (
	// StatusOnline 在线
	StatusOnline Status = "online"

	// StatusIdle 离开
	StatusIdle Status = "idle"

	// StatusDND 请勿打扰
	StatusDND Status = "dnd"

	// StatusOffline 离线
	StatusOffline Status = "offline"
)

// Valid 判断状态值合法
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusIdle, StatusDND, StatusOffline:
		return true
	}
	return false
}

// PresenceRecord 在线状态记录
//
// 每次状态变更和每个心跳周期都会重写；从不显式删除，只被覆盖。
type PresenceRecord struct {
	// PublicKey 所属身份
	PublicKey string `json:"publicKey"`

	// Status 自述状态
	Status Status `json:"status"`

	// LastSeen 最后心跳时间（毫秒）
	LastSeen int64 `json:"lastSeen"`
}

// EffectiveStatus 计算有效状态
//
// 心跳超过离线阈值时无条件视为 offline，存储的状态不可信。
func (p *PresenceRecord) EffectiveStatus(now time.Time, offlineThreshold time.Duration) Status {
	if now.UnixMilli()-p.LastSeen > offlineThreshold.Milliseconds() {
		return StatusOffline
	}
	return p.Status
}

// TypingRecord 输入状态记录
//
// 以 (channelId, publicKey) 为键；读取方在超时后视为已停止输入，
// 补偿丢失的 "stopped typing" 写入。
type TypingRecord struct {
	// ChannelID 所属频道
	ChannelID string `json:"channelId"`

	// PublicKey 输入者
	PublicKey string `json:"publicKey"`

	// IsTyping 是否正在输入
	IsTyping bool `json:"isTyping"`

	// Timestamp 写入时间（毫秒）
	Timestamp int64 `json:"timestamp"`
}

// EffectiveTyping 计算有效输入状态
//
// 记录过期后视为未输入，与是否收到显式停止写入无关。
func (t *TypingRecord) EffectiveTyping(now time.Time, expiry time.Duration) bool {
	if !t.IsTyping {
		return false
	}
	return now.UnixMilli()-t.Timestamp <= expiry.Milliseconds()
}
