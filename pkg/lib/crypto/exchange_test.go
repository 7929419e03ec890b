package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSharedSecret_Symmetric 测试共享密钥双向一致
func TestSharedSecret_Symmetric(t *testing.T) {
	privA, _, err := GenerateKeyPair(nil)
	require.NoError(t, err)
	privB, _, err := GenerateKeyPair(nil)
	require.NoError(t, err)

	exA, err := DeriveExchangeKey(privA)
	require.NoError(t, err)
	exB, err := DeriveExchangeKey(privB)
	require.NoError(t, err)

	secretAB, err := exA.SharedSecret(exB.Public())
	require.NoError(t, err)
	secretBA, err := exB.SharedSecret(exA.Public())
	require.NoError(t, err)

	require.Equal(t, secretAB, secretBA)
	require.Len(t, secretAB, SharedSecretSize)
}

// TestDeriveExchangeKey_Deterministic 测试同一种子派生结果稳定
func TestDeriveExchangeKey_Deterministic(t *testing.T) {
	priv, _, err := GenerateKeyPair(nil)
	require.NoError(t, err)

	ex1, err := DeriveExchangeKey(priv)
	require.NoError(t, err)
	ex2, err := DeriveExchangeKey(priv)
	require.NoError(t, err)

	require.Equal(t, ex1.Public().String(), ex2.Public().String())
}

// TestSealOpen_RoundTrip 测试加解密往返
func TestSealOpen_RoundTrip(t *testing.T) {
	privA, _, err := GenerateKeyPair(nil)
	require.NoError(t, err)
	privB, _, err := GenerateKeyPair(nil)
	require.NoError(t, err)

	exA, err := DeriveExchangeKey(privA)
	require.NoError(t, err)
	exB, err := DeriveExchangeKey(privB)
	require.NoError(t, err)

	secretA, err := exA.SharedSecret(exB.Public())
	require.NoError(t, err)
	secretB, err := exB.SharedSecret(exA.Public())
	require.NoError(t, err)

	ct, err := Seal(secretA, []byte("深夜的私信"))
	require.NoError(t, err)

	pt, err := Open(secretB, ct)
	require.NoError(t, err)
	require.Equal(t, "深夜的私信", string(pt))
}

// TestOpen_WrongSecret 测试错误密钥解密失败
func TestOpen_WrongSecret(t *testing.T) {
	privA, _, err := GenerateKeyPair(nil)
	require.NoError(t, err)
	privB, _, err := GenerateKeyPair(nil)
	require.NoError(t, err)
	privC, _, err := GenerateKeyPair(nil)
	require.NoError(t, err)

	exA, err := DeriveExchangeKey(privA)
	require.NoError(t, err)
	exB, err := DeriveExchangeKey(privB)
	require.NoError(t, err)
	exC, err := DeriveExchangeKey(privC)
	require.NoError(t, err)

	secretAB, err := exA.SharedSecret(exB.Public())
	require.NoError(t, err)
	secretAC, err := exA.SharedSecret(exC.Public())
	require.NoError(t, err)

	ct, err := Seal(secretAB, []byte("secret"))
	require.NoError(t, err)

	_, err = Open(secretAC, ct)
	require.ErrorIs(t, err, ErrDecryptFailed)
}

// TestOpen_InvalidCiphertext 测试非法密文
func TestOpen_InvalidCiphertext(t *testing.T) {
	priv, _, err := GenerateKeyPair(nil)
	require.NoError(t, err)
	ex, err := DeriveExchangeKey(priv)
	require.NoError(t, err)
	secret, err := ex.SharedSecret(ex.Public())
	require.NoError(t, err)

	_, err = Open(secret, "!!!not-base64!!!")
	require.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = Open(secret, "c2hvcnQ")
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}
