package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestDecodeMessage_RoundTrip 测试消息编解码
func TestDecodeMessage_RoundTrip(t *testing.T) {
	m := &Message{
		ID:        "m1",
		ChannelID: "general",
		AuthorKey: "key",
		Content:   "hello",
		Timestamp: 1700000000000,
		Type:      MessageTypeText,
		Version:   MessageRecordVersion,
	}

	data, err := EncodeMessage(m)
	require.NoError(t, err)

	decoded, err := DecodeMessage(data)
	require.NoError(t, err)
	require.Equal(t, m, decoded)
}

// TestDecodeMessage_LegacyRecord 测试 v0 记录迁移
func TestDecodeMessage_LegacyRecord(t *testing.T) {
	// 旧客户端写法：无版本号、字符串附件、布尔 deleted + 散字段
	raw := []byte(`{
		"id": "m1",
		"channelId": "general",
		"authorKey": "key",
		"content": "bye",
		"timestamp": 1700000000000,
		"attachments": "QmContentID",
		"deleted": true,
		"deletedAt": 1700000001000,
		"deletedBy": "key"
	}`)

	m, err := DecodeMessage(raw)
	require.NoError(t, err)

	require.Equal(t, MessageRecordVersion, m.Version)
	require.Equal(t, MessageTypeText, m.Type)
	require.Equal(t, []Attachment{{ContentID: "QmContentID"}}, m.Attachments)
	require.NotNil(t, m.Deleted)
	require.Equal(t, int64(1700000001000), m.Deleted.At)
	require.Equal(t, "key", m.Deleted.By)
}

// TestDecodeMessage_Invalid 测试损坏记录
func TestDecodeMessage_Invalid(t *testing.T) {
	_, err := DecodeMessage(nil)
	require.ErrorIs(t, err, ErrEmptyRecord)

	_, err = DecodeMessage([]byte(`{`))
	require.ErrorIs(t, err, ErrMalformedRecord)

	_, err = DecodeMessage([]byte(`{"content":"no id"}`))
	require.ErrorIs(t, err, ErrMalformedRecord)
}

// TestMessage_StateHash 测试状态摘要对各维度敏感
func TestMessage_StateHash(t *testing.T) {
	base := Message{ID: "m1", Content: "a", Timestamp: 1}
	h := base.StateHash()

	edited := base
	edited.Edited = true
	edited.EditedAt = 2
	require.NotEqual(t, h, edited.StateHash())

	deleted := base
	deleted.Deleted = &Tombstone{At: 3}
	require.NotEqual(t, h, deleted.StateHash())

	same := base
	require.Equal(t, h, same.StateHash())
}

// TestMergeMessage 测试消息合并策略
func TestMergeMessage(t *testing.T) {
	older := &Message{ID: "m", Content: "v1", Timestamp: 1, EditedAt: 10}
	newer := &Message{ID: "m", Content: "v2", Timestamp: 1, EditedAt: 20}
	deleted := &Message{ID: "m", Content: DeletedPlaceholder, Timestamp: 1, Deleted: &Tombstone{At: 5}}

	require.Equal(t, newer, MergeMessage(older, newer))
	require.Equal(t, newer, MergeMessage(newer, older))
	// 删除优先于编辑
	require.Equal(t, deleted, MergeMessage(newer, deleted))
	require.Equal(t, deleted, MergeMessage(deleted, newer))
}

// TestDecodePresence_UnknownStatus 测试未知状态降级为 offline
func TestDecodePresence_UnknownStatus(t *testing.T) {
	p, err := DecodePresence([]byte(`{"publicKey":"k","status":"banana","lastSeen":1}`))
	require.NoError(t, err)
	require.Equal(t, StatusOffline, p.Status)
}

// TestPresence_EffectiveStatus 测试离线阈值
func TestPresence_EffectiveStatus(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	threshold := 45 * time.Second

	fresh := &PresenceRecord{PublicKey: "k", Status: StatusDND, LastSeen: now.UnixMilli() - 1000}
	require.Equal(t, StatusDND, fresh.EffectiveStatus(now, threshold))

	// 恰好超过阈值 1ms，无论存储状态如何都是 offline
	stale := &PresenceRecord{PublicKey: "k", Status: StatusOnline, LastSeen: now.UnixMilli() - threshold.Milliseconds() - 1}
	require.Equal(t, StatusOffline, stale.EffectiveStatus(now, threshold))
}

// TestTyping_Expiry 测试输入状态过期
func TestTyping_Expiry(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	expiry := 6 * time.Second

	active := &TypingRecord{IsTyping: true, Timestamp: now.UnixMilli() - 1000}
	require.True(t, active.EffectiveTyping(now, expiry))

	expired := &TypingRecord{IsTyping: true, Timestamp: now.UnixMilli() - expiry.Milliseconds() - 1}
	require.False(t, expired.EffectiveTyping(now, expiry))

	stopped := &TypingRecord{IsTyping: false, Timestamp: now.UnixMilli()}
	require.False(t, stopped.EffectiveTyping(now, expiry))
}

// TestConversationID_Deterministic 测试会话 ID 与参与者顺序无关
func TestConversationID_Deterministic(t *testing.T) {
	id1 := ConversationID("alice-key", "bob-key")
	id2 := ConversationID("bob-key", "alice-key")

	require.Equal(t, id1, id2)
	require.Len(t, id1, ConversationIDLen)
	require.NotEqual(t, id1, ConversationID("alice-key", "carol-key"))
}

// TestVoiceParticipant_Lifecycle 测试参与者离开与心跳超限判定
func TestVoiceParticipant_Lifecycle(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	bound := 15 * time.Second

	live := &VoiceParticipant{PublicKey: "k", JoinedAt: 1, Heartbeat: now.UnixMilli() - 1000}
	require.True(t, live.Live(now, bound))

	left := &VoiceParticipant{PublicKey: "k", JoinedAt: 1, LeftAt: &Tombstone{At: 2}, Heartbeat: now.UnixMilli()}
	require.True(t, left.HasLeft())
	require.False(t, left.Live(now, bound))

	// 重新加入：joinedAt 晚于旧墓碑
	rejoined := &VoiceParticipant{PublicKey: "k", JoinedAt: 3, LeftAt: &Tombstone{At: 2}, Heartbeat: now.UnixMilli()}
	require.False(t, rejoined.HasLeft())

	stale := &VoiceParticipant{PublicKey: "k", JoinedAt: 1, Heartbeat: now.UnixMilli() - bound.Milliseconds() - 1}
	require.False(t, stale.Live(now, bound))
}

// TestPath_Helpers 测试路径工具
func TestPath_Helpers(t *testing.T) {
	p := MessagePath("general", "m1")
	require.Equal(t, "channels/general/messages/m1", p.String())
	require.Equal(t, "m1", p.Base())
	require.True(t, p.HasPrefix(ChannelMessagesPath("general")))
	require.False(t, p.HasPrefix(ChannelMessagesPath("random")))

	parsed, err := ParsePath("channels/general/messages/m1")
	require.NoError(t, err)
	require.True(t, p.Equal(parsed))

	_, err = ParsePath("")
	require.ErrorIs(t, err, ErrEmptyPath)

	require.Error(t, Path{"a", ""}.Validate())
}

// TestKeyPrefix 测试公钥前缀截取
func TestKeyPrefix(t *testing.T) {
	long := "4ZrPk9WqX2mN8vL5cJ3hT7yB"
	require.Len(t, KeyPrefix(long), KeyPrefixLen)
	require.Equal(t, "short", KeyPrefix("short"))
}
