package types

import (
	"crypto/sha256"
	"strings"

	"github.com/mr-tron/base58"
)

// ConversationIDLen 会话 ID 截取长度（限制路径长度）
const ConversationIDLen = 24

// ConversationID 由参与者公钥对派生确定性会话 ID
//
// 对双方公钥排序后哈希，双方独立计算得到同一 ID。
func ConversationID(keyA, keyB string) string {
	a, b := keyA, keyB
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	sum := sha256.Sum256([]byte(a + "|" + b))
	id := base58.Encode(sum[:])
	if len(id) > ConversationIDLen {
		id = id[:ConversationIDLen]
	}
	return id
}

// Conversation 私信会话元数据
//
// 存放在双方均可读的共享路径；此外每个参与者各持有一个私有指针，
// 并向对方的公开收件箱写入通知 —— 一个身份的受保护图区域
// 无法由另一个身份写入，因此需要这种不对称写法。
type Conversation struct {
	// ID 确定性会话 ID
	ID string `json:"id"`

	// ParticipantA 排序后较小的参与者公钥
	ParticipantA string `json:"participantA"`

	// ParticipantB 排序后较大的参与者公钥
	ParticipantB string `json:"participantB"`

	// CreatedAt 创建时间（毫秒）
	CreatedAt int64 `json:"createdAt"`

	// LastMessageAt 最后一条消息时间（毫秒）
	LastMessageAt int64 `json:"lastMessageAt,omitempty"`
}

// HasParticipant 判断公钥是否为会话参与者
func (c *Conversation) HasParticipant(publicKey string) bool {
	return c.ParticipantA == publicKey || c.ParticipantB == publicKey
}

// Other 返回另一方参与者
func (c *Conversation) Other(publicKey string) string {
	if c.ParticipantA == publicKey {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// InboxEntry 收件箱通知条目
//
// 收件箱路径任何人可写，单个条目不可直接信任，
// 必须对照共享元数据做参与者校验后才采纳。
type InboxEntry struct {
	// ConversationID 会话 ID
	ConversationID string `json:"conversationId"`

	// From 发起方公钥
	From string `json:"from"`

	// At 写入时间（毫秒）
	At int64 `json:"at"`
}

// DirectMessage 端到端加密私信
//
// Encrypted 为加密原语产出的不透明字符串；
// 签名覆盖 (id, ciphertext, timestamp, authorKey)。
type DirectMessage struct {
	// ID 消息唯一标识
	ID string `json:"id"`

	// ConversationID 所属会话
	ConversationID string `json:"conversationId"`

	// AuthorKey 作者公钥
	AuthorKey string `json:"authorKey"`

	// Encrypted 密文
	Encrypted string `json:"encrypted"`

	// Timestamp 发送时间（毫秒）
	Timestamp int64 `json:"timestamp"`

	// Signature 信封签名
	Signature string `json:"signature"`
}

// PlainDirectMessage 解密并验签后暴露给调用方的私信
type PlainDirectMessage struct {
	// ID 消息唯一标识
	ID string

	// ConversationID 所属会话
	ConversationID string

	// AuthorKey 已验证的作者公钥
	AuthorKey string

	// Content 明文内容
	Content string

	// Timestamp 发送时间（毫秒）
	Timestamp int64
}
