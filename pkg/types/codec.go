package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// 编解码集中于此：每个路径族一对 Encode/Decode，
// 历史版本记录的兼容处理是显式的迁移函数，而不是散落在调用点的回退。

// 定义错误
var (
	// ErrEmptyRecord 记录为空
	ErrEmptyRecord = errors.New("empty record")

	// ErrMalformedRecord 记录格式损坏
	ErrMalformedRecord = errors.New("malformed record")
)

// EncodeMessage 序列化频道消息
func EncodeMessage(m *Message) ([]byte, error) {
	if m == nil {
		return nil, ErrEmptyRecord
	}
	return json.Marshal(m)
}

// DecodeMessage 反序列化频道消息，自动迁移旧版本记录
func DecodeMessage(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, ErrEmptyRecord
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if m.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}
	if m.Version < MessageRecordVersion {
		if err := migrateMessage(&m, data); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// migrateMessage 将 v0 记录升级到当前版本
//
// v0 差异：
//   - 无 recordVersion 字段
//   - type 可能缺失（默认 text）
//   - attachments 可能是单个内容 ID 字符串而非列表
//   - deleted 可能是布尔 + deletedAt/deletedBy 三个散字段
func migrateMessage(m *Message, data []byte) error {
	var legacy struct {
		Type        string          `json:"type"`
		Attachments json.RawMessage `json:"attachments"`
		Deleted     json.RawMessage `json:"deleted"`
		DeletedAt   int64           `json:"deletedAt"`
		DeletedBy   string          `json:"deletedBy"`
	}
	if err := json.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	if legacy.Type == "" {
		m.Type = MessageTypeText
	}

	// 单字符串附件 → 附件列表
	if len(legacy.Attachments) > 0 && legacy.Attachments[0] == '"' {
		var cid string
		if err := json.Unmarshal(legacy.Attachments, &cid); err == nil && cid != "" {
			m.Attachments = []Attachment{{ContentID: cid}}
		}
	}

	// 布尔 deleted + 散字段 → 墓碑
	if len(legacy.Deleted) > 0 && (legacy.Deleted[0] == 't' || legacy.Deleted[0] == 'f') {
		var flag bool
		if err := json.Unmarshal(legacy.Deleted, &flag); err == nil {
			if flag {
				m.Deleted = &Tombstone{At: legacy.DeletedAt, By: legacy.DeletedBy}
			} else {
				m.Deleted = nil
			}
		}
	}

	m.Version = MessageRecordVersion
	return nil
}

// EncodeReaction 序列化反应
func EncodeReaction(r *Reaction) ([]byte, error) {
	if r == nil {
		return nil, ErrEmptyRecord
	}
	return json.Marshal(r)
}

// DecodeReaction 反序列化反应
func DecodeReaction(data []byte) (*Reaction, error) {
	if len(data) == 0 {
		return nil, ErrEmptyRecord
	}
	var r Reaction
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return &r, nil
}

// EncodePresence 序列化在线状态
func EncodePresence(p *PresenceRecord) ([]byte, error) {
	if p == nil {
		return nil, ErrEmptyRecord
	}
	return json.Marshal(p)
}

// DecodePresence 反序列化在线状态
func DecodePresence(data []byte) (*PresenceRecord, error) {
	if len(data) == 0 {
		return nil, ErrEmptyRecord
	}
	var p PresenceRecord
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if !p.Status.Valid() {
		// 未知状态按 offline 处理，不拒绝整条记录
		p.Status = StatusOffline
	}
	return &p, nil
}

// EncodeTyping 序列化输入状态
func EncodeTyping(t *TypingRecord) ([]byte, error) {
	if t == nil {
		return nil, ErrEmptyRecord
	}
	return json.Marshal(t)
}

// DecodeTyping 反序列化输入状态
func DecodeTyping(data []byte) (*TypingRecord, error) {
	if len(data) == 0 {
		return nil, ErrEmptyRecord
	}
	var t TypingRecord
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return &t, nil
}

// EncodeConversation 序列化会话元数据
func EncodeConversation(c *Conversation) ([]byte, error) {
	if c == nil {
		return nil, ErrEmptyRecord
	}
	return json.Marshal(c)
}

// DecodeConversation 反序列化会话元数据
func DecodeConversation(data []byte) (*Conversation, error) {
	if len(data) == 0 {
		return nil, ErrEmptyRecord
	}
	var c Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if c.ID == "" || c.ParticipantA == "" || c.ParticipantB == "" {
		return nil, fmt.Errorf("%w: incomplete conversation", ErrMalformedRecord)
	}
	return &c, nil
}

// EncodeInboxEntry 序列化收件箱条目
func EncodeInboxEntry(e *InboxEntry) ([]byte, error) {
	if e == nil {
		return nil, ErrEmptyRecord
	}
	return json.Marshal(e)
}

// DecodeInboxEntry 反序列化收件箱条目
func DecodeInboxEntry(data []byte) (*InboxEntry, error) {
	if len(data) == 0 {
		return nil, ErrEmptyRecord
	}
	var e InboxEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return &e, nil
}

// EncodeDirectMessage 序列化私信
func EncodeDirectMessage(m *DirectMessage) ([]byte, error) {
	if m == nil {
		return nil, ErrEmptyRecord
	}
	return json.Marshal(m)
}

// DecodeDirectMessage 反序列化私信
func DecodeDirectMessage(data []byte) (*DirectMessage, error) {
	if len(data) == 0 {
		return nil, ErrEmptyRecord
	}
	var m DirectMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if m.ID == "" || m.Encrypted == "" {
		return nil, fmt.Errorf("%w: incomplete direct message", ErrMalformedRecord)
	}
	return &m, nil
}

// EncodeVoiceParticipant 序列化语音参与者
func EncodeVoiceParticipant(v *VoiceParticipant) ([]byte, error) {
	if v == nil {
		return nil, ErrEmptyRecord
	}
	return json.Marshal(v)
}

// DecodeVoiceParticipant 反序列化语音参与者
func DecodeVoiceParticipant(data []byte) (*VoiceParticipant, error) {
	if len(data) == 0 {
		return nil, ErrEmptyRecord
	}
	var v VoiceParticipant
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return &v, nil
}

// EncodeSignaling 序列化信令信封
func EncodeSignaling(s *SignalingEnvelope) ([]byte, error) {
	if s == nil {
		return nil, ErrEmptyRecord
	}
	return json.Marshal(s)
}

// DecodeSignaling 反序列化信令信封
func DecodeSignaling(data []byte) (*SignalingEnvelope, error) {
	if len(data) == 0 {
		return nil, ErrEmptyRecord
	}
	var s SignalingEnvelope
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return &s, nil
}

// EncodeVoiceCommand 序列化语音命令
func EncodeVoiceCommand(c *VoiceCommand) ([]byte, error) {
	if c == nil {
		return nil, ErrEmptyRecord
	}
	return json.Marshal(c)
}

// DecodeVoiceCommand 反序列化语音命令
func DecodeVoiceCommand(data []byte) (*VoiceCommand, error) {
	if len(data) == 0 {
		return nil, ErrEmptyRecord
	}
	var c VoiceCommand
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return &c, nil
}
