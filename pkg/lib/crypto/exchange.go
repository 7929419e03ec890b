package crypto

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// 交换密钥常量
const (
	// ExchangeKeySize X25519 密钥大小（32 字节）
	ExchangeKeySize = curve25519.ScalarSize

	// SharedSecretSize 共享密钥大小（32 字节）
	SharedSecretSize = chacha20poly1305.KeySize
)

// 派生上下文标签，签名种子与交换标量之间的域分隔
var (
	exchangeDeriveInfo = []byte("dechat/exchange/v1")
	sharedSecretInfo   = []byte("dechat/dm/v1")
)

// ============================================================================
//                              ExchangeKeyPair
// ============================================================================

// ExchangePublicKey X25519 交换公钥
//
// 发布在共享图的 users/{pub}/exchange 路径下，供私信对端协商共享密钥。
type ExchangePublicKey struct {
	k [ExchangeKeySize]byte
}

// Raw 返回原始公钥字节
func (k *ExchangePublicKey) Raw() []byte {
	buf := make([]byte, ExchangeKeySize)
	copy(buf, k.k[:])
	return buf
}

// String 返回公钥的 base58 编码
func (k *ExchangePublicKey) String() string {
	return base58.Encode(k.k[:])
}

// ParseExchangePublicKey 从 base58 字符串解析交换公钥
func ParseExchangePublicKey(s string) (*ExchangePublicKey, error) {
	data, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(data) != ExchangeKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeySize, ExchangeKeySize, len(data))
	}
	pub := &ExchangePublicKey{}
	copy(pub.k[:], data)
	return pub, nil
}

// ExchangeKeyPair X25519 交换密钥对
type ExchangeKeyPair struct {
	priv [ExchangeKeySize]byte
	pub  ExchangePublicKey
}

// Public 返回交换公钥
func (k *ExchangeKeyPair) Public() *ExchangePublicKey {
	pub := k.pub
	return &pub
}

// DeriveExchangeKey 从签名私钥种子派生交换密钥对
//
// 同一身份的交换密钥是确定的：任何设备用相同种子都能重建，
// 无需在网络上分发私有材料。
func DeriveExchangeKey(priv *PrivateKey) (*ExchangeKeyPair, error) {
	if priv == nil {
		return nil, ErrInvalidPrivateKey
	}

	r := hkdf.New(sha256.New, priv.Seed(), nil, exchangeDeriveInfo)
	kp := &ExchangeKeyPair{}
	if _, err := io.ReadFull(r, kp.priv[:]); err != nil {
		return nil, err
	}

	pub, err := curve25519.X25519(kp.priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	copy(kp.pub.k[:], pub)
	return kp, nil
}

// SharedSecret 计算与对端的共享密钥
//
// DH 输出经 HKDF 拉伸，盐为双方交换公钥按字节序排序后的拼接，
// 因此 A→B 与 B→A 得到同一密钥。
func (k *ExchangeKeyPair) SharedSecret(remote *ExchangePublicKey) ([]byte, error) {
	if remote == nil {
		return nil, ErrInvalidPublicKey
	}

	dh, err := curve25519.X25519(k.priv[:], remote.k[:])
	if err != nil {
		return nil, err
	}

	// 排序保证对称性
	a, b := k.pub.k[:], remote.k[:]
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}
	salt := append(append([]byte{}, a...), b...)

	secret := make([]byte, SharedSecretSize)
	r := hkdf.New(sha256.New, dh, salt, sharedSecretInfo)
	if _, err := io.ReadFull(r, secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// ============================================================================
//                              对称加密
// ============================================================================

// Seal 用共享密钥加密明文
//
// 使用 XChaCha20-Poly1305，随机 24 字节 nonce 前置于密文，
// 整体 base64 编码为不透明字符串。
func Seal(secret, plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(secret)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open 用共享密钥解密密文
func Open(secret []byte, ciphertext string) ([]byte, error) {
	raw, err := base64.RawStdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return nil, ErrInvalidCiphertext
	}

	aead, err := chacha20poly1305.NewX(secret)
	if err != nil {
		return nil, err
	}

	nonce, sealed := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
