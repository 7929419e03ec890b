package interfaces

import (
	"github.com/dechat/go-dechat/pkg/lib/crypto"
)

// Identity 本地身份
//
// 持有签名密钥对与派生的交换密钥对。公钥的 base58 编码
// 即用户在共享图中的标识。
type Identity interface {
	// PublicKey 返回签名公钥的 base58 编码
	PublicKey() string

	// SignEnvelope 对消息规范子集签名
	SignEnvelope(env crypto.Envelope) (string, error)

	// ExchangePublicKey 返回交换公钥（发布到共享图供私信对端使用）
	ExchangePublicKey() *crypto.ExchangePublicKey

	// SharedSecret 与对端交换公钥协商共享密钥
	SharedSecret(remote *crypto.ExchangePublicKey) ([]byte, error)
}
