package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// MessageRecordVersion 当前消息记录版本
//
// 旧客户端写入的无版本记录由 codec.go 中的迁移函数升级。
const MessageRecordVersion = 1

// MessageType 消息类型
type MessageType string

// 消息类型常量
const (
	// MessageTypeText 普通文本消息
	MessageTypeText MessageType = "text"

	// MessageTypeSystem 系统消息
	MessageTypeSystem MessageType = "system"

	// MessageTypeFile 文件消息（附件为内容寻址 ID）
	MessageTypeFile MessageType = "file"
)

// DeletedPlaceholder 软删除后的内容占位串
const DeletedPlaceholder = "[此消息已删除]"

// Attachment 消息附件
//
// ContentID 指向外部内容寻址存储，本核心只携带并签名该字符串，
// 从不解释字节内容。
type Attachment struct {
	// ContentID 内容寻址 ID
	ContentID string `json:"contentId"`

	// Name 文件名
	Name string `json:"name,omitempty"`

	// Size 字节大小
	Size int64 `json:"size,omitempty"`

	// MimeType MIME 类型
	MimeType string `json:"mimeType,omitempty"`
}

// ReplyRef 回复目标引用
type ReplyRef struct {
	// MessageID 被回复消息 ID
	MessageID string `json:"messageId"`

	// Preview 被回复内容预览
	Preview string `json:"preview,omitempty"`

	// AuthorKey 被回复消息作者
	AuthorKey string `json:"authorKey,omitempty"`
}

// EditEntry 编辑历史条目
type EditEntry struct {
	// Content 编辑前的内容
	Content string `json:"content"`

	// EditedAt 编辑发生时间（毫秒）
	EditedAt int64 `json:"editedAt"`
}

// Tombstone 逻辑删除/离开标记
//
// 底层存储没有硬删除，删除以显式标记状态表达，
// 而不是从字段缺失或顺序中推断。
type Tombstone struct {
	// At 标记时间（毫秒）
	At int64 `json:"at"`

	// By 执行者公钥
	By string `json:"by,omitempty"`
}

// Message 频道消息
//
// 生命周期：sent → [edited]* → [deleted]（终态）。
// 只有作者可变更；真实性由签名在读取侧重新验证，没有服务端 ACL。
type Message struct {
	// ID 本地生成的全局唯一标识
	ID string `json:"id"`

	// ChannelID 所属频道
	ChannelID string `json:"channelId"`

	// AuthorKey 作者签名公钥（base58）
	AuthorKey string `json:"authorKey"`

	// Content 明文内容（删除后为占位串）
	Content string `json:"content"`

	// Timestamp 创建时间（毫秒）
	Timestamp int64 `json:"timestamp"`

	// Type 消息类型
	Type MessageType `json:"type"`

	// Attachments 附件列表
	Attachments []Attachment `json:"attachments,omitempty"`

	// ReplyTo 回复引用
	ReplyTo *ReplyRef `json:"replyTo,omitempty"`

	// Signature 对规范子集的签名
	Signature string `json:"signature"`

	// Edited 是否被编辑过
	Edited bool `json:"edited,omitempty"`

	// EditedAt 最后编辑时间（毫秒）
	EditedAt int64 `json:"editedAt,omitempty"`

	// EditHistory 编辑历史
	EditHistory []EditEntry `json:"editHistory,omitempty"`

	// Deleted 删除标记（软删除，保留叶子）
	Deleted *Tombstone `json:"deleted,omitempty"`

	// Version 记录版本
	Version int `json:"recordVersion"`
}

// IsDeleted 是否已被软删除
func (m *Message) IsDeleted() bool {
	return m.Deleted != nil
}

// StateHash 返回消息逻辑状态摘要
//
// 覆盖 (id, content, edited, editedAt, deleted, deletedAt)。
// 订阅端用它抑制底层存储重复收敛产生的等价更新。
func (m *Message) StateHash() string {
	h := sha256.New()
	h.Write([]byte(m.ID))
	h.Write([]byte{0})
	h.Write([]byte(m.Content))
	h.Write([]byte{0})
	if m.Edited {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	h.Write([]byte(strconv.FormatInt(m.EditedAt, 10)))
	h.Write([]byte{0})
	if m.Deleted != nil {
		h.Write([]byte{1})
		h.Write([]byte(strconv.FormatInt(m.Deleted.At, 10)))
	} else {
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MergeMessage 按叶子级 last-write-wins 合并两份消息状态
//
// 删除优先于编辑；其余以较新的 editedAt/timestamp 为准。
// 并发编辑不做历史合并，落后写入整体被覆盖（承袭既有行为）。
func MergeMessage(a, b *Message) *Message {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.IsDeleted() != b.IsDeleted() {
		if a.IsDeleted() {
			return a
		}
		return b
	}
	if b.EditedAt > a.EditedAt {
		return b
	}
	if b.EditedAt == a.EditedAt && b.Timestamp > a.Timestamp {
		return b
	}
	return a
}

// Reaction 消息反应
//
// 以 (messageId, emoji, userKey) 为键的独立叶子，
// 并发反应者互不冲突；移除以墓碑表示。
type Reaction struct {
	// MessageID 目标消息
	MessageID string `json:"messageId"`

	// Emoji 表情
	Emoji string `json:"emoji"`

	// UserKey 反应者公钥
	UserKey string `json:"userKey"`

	// Timestamp 反应时间（毫秒）
	Timestamp int64 `json:"timestamp"`

	// Removed 移除墓碑
	Removed *Tombstone `json:"removed,omitempty"`
}

// Active 反应是否有效（未被墓碑移除）
func (r *Reaction) Active() bool {
	return r.Removed == nil
}

// ReactionMap 一条消息的完整反应视图：emoji → 反应者公钥列表
type ReactionMap map[string][]string
