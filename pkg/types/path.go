package types

import (
	"errors"
	"strings"
)

// Path 共享图中的节点地址
//
// 有序字符串段序列，是系统唯一的寻址方式。
// 同一路径下的兄弟叶子彼此独立合并（叶子级 last-write-wins）。
type Path []string

// 定义错误
var (
	// ErrEmptyPath 路径为空
	ErrEmptyPath = errors.New("empty path")

	// ErrInvalidSegment 路径段非法
	ErrInvalidSegment = errors.New("invalid path segment")
)

// PathSeparator 路径段分隔符
const PathSeparator = "/"

// NewPath 由路径段构造 Path
func NewPath(segments ...string) Path {
	return Path(segments)
}

// ParsePath 解析 "a/b/c" 形式的路径串
func ParsePath(s string) (Path, error) {
	if s == "" {
		return nil, ErrEmptyPath
	}
	segments := strings.Split(s, PathSeparator)
	p := Path(segments)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate 校验路径合法性
func (p Path) Validate() error {
	if len(p) == 0 {
		return ErrEmptyPath
	}
	for _, seg := range p {
		if seg == "" || strings.Contains(seg, PathSeparator) {
			return ErrInvalidSegment
		}
	}
	return nil
}

// String 返回 "a/b/c" 形式的路径串
func (p Path) String() string {
	return strings.Join(p, PathSeparator)
}

// Child 返回追加一段后的新路径
func (p Path) Child(segment string) Path {
	child := make(Path, 0, len(p)+1)
	child = append(child, p...)
	child = append(child, segment)
	return child
}

// Base 返回最后一段
func (p Path) Base() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Parent 返回去掉最后一段的路径
func (p Path) Parent() Path {
	if len(p) <= 1 {
		return nil
	}
	return p[:len(p)-1]
}

// HasPrefix 判断 prefix 是否为 p 的前缀
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i, seg := range prefix {
		if p[i] != seg {
			return false
		}
	}
	return true
}

// Equal 判断两条路径相等
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	return p.HasPrefix(other)
}

// ════════════════════════════════════════════════════════════════════════════
//                              路径族
// ════════════════════════════════════════════════════════════════════════════

// KeyPrefixLen 路径中公钥前缀的截取长度
//
// 信令等高频路径用截断公钥限制路径长度；16 个 base58 字符
// 在聊天规模下碰撞概率可以忽略。
const KeyPrefixLen = 16

// KeyPrefix 返回公钥的路径前缀形式
func KeyPrefix(publicKey string) string {
	if len(publicKey) <= KeyPrefixLen {
		return publicKey
	}
	return publicKey[:KeyPrefixLen]
}

// ChannelMessagesPath 频道消息子图 channels/{ch}/messages
func ChannelMessagesPath(channelID string) Path {
	return Path{"channels", channelID, "messages"}
}

// MessagePath 单条消息 channels/{ch}/messages/{id}
func MessagePath(channelID, messageID string) Path {
	return ChannelMessagesPath(channelID).Child(messageID)
}

// MessageReactionsPath 消息反应子图 reactions/{msg}
func MessageReactionsPath(messageID string) Path {
	return Path{"reactions", messageID}
}

// ReactionPath 单个反应叶子 reactions/{msg}/{emoji}/{user}
func ReactionPath(messageID, emoji, userKey string) Path {
	return Path{"reactions", messageID, emoji, userKey}
}

// PresencePath 在线状态 presence/{pub}
func PresencePath(publicKey string) Path {
	return Path{"presence", publicKey}
}

// TypingChannelPath 频道输入状态子图 typing/{ch}
func TypingChannelPath(channelID string) Path {
	return Path{"typing", channelID}
}

// TypingPath 单个输入状态叶子 typing/{ch}/{pub}
func TypingPath(channelID, publicKey string) Path {
	return TypingChannelPath(channelID).Child(publicKey)
}

// ConversationMetaPath 私信会话元数据 dms/{conv}/meta
func ConversationMetaPath(conversationID string) Path {
	return Path{"dms", conversationID, "meta"}
}

// ConversationMessagesPath 私信消息子图 dms/{conv}/messages
func ConversationMessagesPath(conversationID string) Path {
	return Path{"dms", conversationID, "messages"}
}

// DirectMessagePath 单条私信 dms/{conv}/messages/{id}
func DirectMessagePath(conversationID, messageID string) Path {
	return ConversationMessagesPath(conversationID).Child(messageID)
}

// UserConversationsPath 用户私有会话指针子图 users/{pub}/conversations
func UserConversationsPath(publicKey string) Path {
	return Path{"users", publicKey, "conversations"}
}

// UserConversationPath 单个会话指针 users/{pub}/conversations/{conv}
func UserConversationPath(publicKey, conversationID string) Path {
	return UserConversationsPath(publicKey).Child(conversationID)
}

// InboxPath 公开收件箱子图 users/{pub}/inbox
//
// 任何身份都可写入他人收件箱，读取方必须对每个条目做参与者校验。
func InboxPath(publicKey string) Path {
	return Path{"users", publicKey, "inbox"}
}

// InboxEntryPath 单个收件箱条目 users/{pub}/inbox/{conv}
func InboxEntryPath(publicKey, conversationID string) Path {
	return InboxPath(publicKey).Child(conversationID)
}

// ExchangeKeyPath 交换公钥发布位置 users/{pub}/exchange
func ExchangeKeyPath(publicKey string) Path {
	return Path{"users", publicKey, "exchange"}
}

// VoiceParticipantsPath 语音参与者子图 voice/{ch}/participants
func VoiceParticipantsPath(channelID string) Path {
	return Path{"voice", channelID, "participants"}
}

// VoiceParticipantPath 单个参与者 voice/{ch}/participants/{pub}
func VoiceParticipantPath(channelID, publicKey string) Path {
	return VoiceParticipantsPath(channelID).Child(publicKey)
}

// VoiceCommandsPath 语音控制命令子图 voice/{ch}/commands/{pub}
//
// server-mute / force-disconnect 以命令形式写入，由目标客户端自行执行。
func VoiceCommandsPath(channelID, targetKey string) Path {
	return Path{"voice", channelID, "commands", targetKey}
}

// VoiceCommandPath 单条命令 voice/{ch}/commands/{pub}/{id}
func VoiceCommandPath(channelID, targetKey, commandID string) Path {
	return VoiceCommandsPath(channelID, targetKey).Child(commandID)
}

// SignalingInboxPath 信令收件子图 signaling/{toPrefix}
func SignalingInboxPath(toKey string) Path {
	return Path{"signaling", KeyPrefix(toKey)}
}

// SignalingPath 单条信令 signaling/{toPrefix}/{fromPrefix}/{id}
//
// 信令只追加不覆盖：多条 ICE candidate 必须全部送达。
func SignalingPath(toKey, fromKey, messageID string) Path {
	return Path{"signaling", KeyPrefix(toKey), KeyPrefix(fromKey), messageID}
}

// PingPath 连通性探测 ping/{prefix}
func PingPath(selfKey string) Path {
	return Path{"ping", KeyPrefix(selfKey)}
}
