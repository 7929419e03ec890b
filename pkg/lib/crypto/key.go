package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/mr-tron/base58"
)

// Ed25519 密钥常量
const (
	// PublicKeySize Ed25519 公钥大小（32 字节）
	PublicKeySize = ed25519.PublicKeySize
	// PrivateKeySize Ed25519 私钥大小（64 字节）
	PrivateKeySize = ed25519.PrivateKeySize
	// SignatureSize Ed25519 签名大小（64 字节）
	SignatureSize = ed25519.SignatureSize
	// SeedSize Ed25519 种子大小（32 字节）
	SeedSize = ed25519.SeedSize
)

// ============================================================================
//                              PublicKey
// ============================================================================

// PublicKey Ed25519 签名公钥
//
// 公钥的 base58 编码即为用户在共享图中的标识。
type PublicKey struct {
	k ed25519.PublicKey
}

// Raw 返回原始公钥字节
func (k *PublicKey) Raw() []byte {
	buf := make([]byte, len(k.k))
	copy(buf, k.k)
	return buf
}

// String 返回公钥的 base58 编码
func (k *PublicKey) String() string {
	return base58.Encode(k.k)
}

// Equals 比较两个公钥是否相等
//
// 使用常量时间比较以防止时序攻击。
func (k *PublicKey) Equals(other *PublicKey) bool {
	if other == nil {
		return false
	}
	return subtle.ConstantTimeCompare(k.k, other.k) == 1
}

// Verify 使用此公钥验证签名
func (k *PublicKey) Verify(data, sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(k.k, data, sig)
}

// ============================================================================
//                              PrivateKey
// ============================================================================

// PrivateKey Ed25519 签名私钥
type PrivateKey struct {
	k ed25519.PrivateKey
}

// Raw 返回原始私钥字节（64 字节，含种子与公钥）
func (k *PrivateKey) Raw() []byte {
	buf := make([]byte, len(k.k))
	copy(buf, k.k)
	return buf
}

// Seed 返回私钥种子（32 字节）
func (k *PrivateKey) Seed() []byte {
	return k.k.Seed()
}

// Public 返回对应的公钥
func (k *PrivateKey) Public() *PublicKey {
	pub := k.k.Public().(ed25519.PublicKey) //nolint:errcheck // 类型断言安全
	return &PublicKey{k: pub}
}

// Sign 使用此私钥签名数据
func (k *PrivateKey) Sign(data []byte) []byte {
	return ed25519.Sign(k.k, data)
}

// ============================================================================
//                              工厂函数
// ============================================================================

// GenerateKeyPair 生成新的 Ed25519 密钥对
//
// 参数：
//   - src: 随机源，nil 时使用 crypto/rand
//
// 返回：
//   - *PrivateKey: 私钥
//   - *PublicKey: 公钥
//   - error: 生成错误
func GenerateKeyPair(src io.Reader) (*PrivateKey, *PublicKey, error) {
	if src == nil {
		src = rand.Reader
	}
	pub, priv, err := ed25519.GenerateKey(src)
	if err != nil {
		return nil, nil, err
	}
	return &PrivateKey{k: priv}, &PublicKey{k: pub}, nil
}

// UnmarshalPublicKey 从字节反序列化公钥
func UnmarshalPublicKey(data []byte) (*PublicKey, error) {
	if len(data) != PublicKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeySize, PublicKeySize, len(data))
	}
	k := make([]byte, PublicKeySize)
	copy(k, data)
	return &PublicKey{k: k}, nil
}

// ParsePublicKey 从 base58 字符串解析公钥
func ParsePublicKey(s string) (*PublicKey, error) {
	data, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return UnmarshalPublicKey(data)
}

// UnmarshalPrivateKey 从字节反序列化私钥
//
// 支持两种格式：
//   - 64 字节：完整私钥（种子 + 公钥）
//   - 32 字节：仅种子，派生完整私钥
func UnmarshalPrivateKey(data []byte) (*PrivateKey, error) {
	switch len(data) {
	case PrivateKeySize:
		k := make([]byte, PrivateKeySize)
		copy(k, data)
		return &PrivateKey{k: k}, nil
	case SeedSize:
		return &PrivateKey{k: ed25519.NewKeyFromSeed(data)}, nil
	default:
		return nil, fmt.Errorf("%w: expected %d or %d bytes, got %d",
			ErrInvalidKeySize, SeedSize, PrivateKeySize, len(data))
	}
}
