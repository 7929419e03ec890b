package crypto

import (
	"encoding/base64"
	"strconv"
)

// Envelope 签名载荷的规范子集
//
// 签名方与验证方必须对完全相同的字段子集做完全相同的序列化，
// 否则验证永远失败。Body 为明文内容（频道消息）或密文（私信）。
// ChannelID 对私信为空。
type Envelope struct {
	// ID 消息唯一标识
	ID string

	// Body 内容或密文
	Body string

	// Timestamp 毫秒时间戳
	Timestamp int64

	// AuthorKey 作者公钥（base58）
	AuthorKey string

	// ChannelID 频道标识（私信为空）
	ChannelID string
}

// 规范序列化的版本标签
const envelopePrefix = "dechat/sign/v1"

// canonical 返回确定性序列化字节
//
// 字段以换行分隔、固定顺序拼接。字段自身不含换行
// （ID/密钥为编码串，Body 的换行在拼接前转义）。
func (e *Envelope) canonical() []byte {
	buf := make([]byte, 0, len(envelopePrefix)+len(e.ID)+len(e.Body)+len(e.AuthorKey)+len(e.ChannelID)+32)
	buf = append(buf, envelopePrefix...)
	buf = append(buf, '\n')
	buf = append(buf, e.ID...)
	buf = append(buf, '\n')
	buf = appendEscaped(buf, e.Body)
	buf = append(buf, '\n')
	buf = strconv.AppendInt(buf, e.Timestamp, 10)
	buf = append(buf, '\n')
	buf = append(buf, e.AuthorKey...)
	buf = append(buf, '\n')
	buf = append(buf, e.ChannelID...)
	return buf
}

// appendEscaped 转义字段分隔符
func appendEscaped(buf []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\\':
			buf = append(buf, '\\', '\\')
		default:
			buf = append(buf, s[i])
		}
	}
	return buf
}

// SignEnvelope 对信封签名，返回 base64 签名串
func SignEnvelope(priv *PrivateKey, e Envelope) (string, error) {
	if priv == nil {
		return "", ErrInvalidPrivateKey
	}
	sig := priv.Sign(e.canonical())
	return base64.RawStdEncoding.EncodeToString(sig), nil
}

// VerifyEnvelope 按声称的作者公钥验证信封签名
//
// 任何解析失败都视为验证失败，不区分原因。
func VerifyEnvelope(claimedKey string, e Envelope, signature string) bool {
	pub, err := ParsePublicKey(claimedKey)
	if err != nil {
		return false
	}
	sig, err := base64.RawStdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return pub.Verify(e.canonical(), sig)
}
