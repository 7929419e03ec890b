// Package identity 提供本地身份管理
//
// 身份 = Ed25519 签名密钥对 + 从同一种子派生的 X25519 交换密钥对。
// 公钥的 base58 编码即用户标识；交换公钥发布到共享图供私信对端协商。
package identity

import (
	"github.com/dechat/go-dechat/pkg/interfaces"
	"github.com/dechat/go-dechat/pkg/lib/crypto"
	"github.com/dechat/go-dechat/pkg/lib/log"
)

var logger = log.Logger("core/identity")

// Identity 本地身份实现
type Identity struct {
	priv     *crypto.PrivateKey
	pub      *crypto.PublicKey
	exchange *crypto.ExchangeKeyPair
}

// 确保 Identity 实现了 interfaces.Identity 接口
var _ interfaces.Identity = (*Identity)(nil)

// Generate 生成全新身份
func Generate() (*Identity, error) {
	priv, pub, err := crypto.GenerateKeyPair(nil)
	if err != nil {
		return nil, err
	}
	return fromKeys(priv, pub)
}

// FromSeed 从 32 字节种子重建身份
//
// 同一种子在任何设备上重建出相同的签名与交换密钥。
func FromSeed(seed []byte) (*Identity, error) {
	priv, err := crypto.UnmarshalPrivateKey(seed)
	if err != nil {
		return nil, err
	}
	return fromKeys(priv, priv.Public())
}

func fromKeys(priv *crypto.PrivateKey, pub *crypto.PublicKey) (*Identity, error) {
	exchange, err := crypto.DeriveExchangeKey(priv)
	if err != nil {
		return nil, err
	}
	id := &Identity{priv: priv, pub: pub, exchange: exchange}
	logger.Debug("身份已就绪", "publicKey", log.TruncateID(id.PublicKey(), 8))
	return id, nil
}

// PublicKey 返回签名公钥的 base58 编码
func (i *Identity) PublicKey() string {
	return i.pub.String()
}

// SignEnvelope 对消息规范子集签名
func (i *Identity) SignEnvelope(env crypto.Envelope) (string, error) {
	return crypto.SignEnvelope(i.priv, env)
}

// ExchangePublicKey 返回交换公钥
func (i *Identity) ExchangePublicKey() *crypto.ExchangePublicKey {
	return i.exchange.Public()
}

// SharedSecret 与对端交换公钥协商共享密钥
func (i *Identity) SharedSecret(remote *crypto.ExchangePublicKey) ([]byte, error) {
	return i.exchange.SharedSecret(remote)
}

// Seed 返回私钥种子（用于持久化；调用方负责安全存储）
func (i *Identity) Seed() []byte {
	return i.priv.Seed()
}
