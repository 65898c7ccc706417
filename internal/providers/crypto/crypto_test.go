package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	tests := []struct {
		kind string
		want string
	}{
		{"md5", "5d41402abc4b2a76b9719d911017c592"},
		{"MD5", "5d41402abc4b2a76b9719d911017c592"},
		{"sha1", "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"},
		{"sha256", "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		{"sha3-256", "3338be694f50c5f338814986cdf0686453a888b84f424d792af4b9202398f392"},
		{"whirlpool", ""},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			assert.Equal(t, tt.want, Hash(tt.kind, []byte("hello")))
		})
	}
	assert.Len(t, Hash("blake2b", []byte("hello")), 64)
	assert.Equal(t, Hash("md5", []byte("x")), MD5("x"))
}

func TestBase64(t *testing.T) {
	assert.Equal(t, "aGk/Pz4+", Base64Encode([]byte("hi??>>")))
	assert.Equal(t, []byte("hi??>>"), Base64Decode("aGk/Pz4+"))
	assert.Equal(t, []byte("hi??>>"), Base64Decode("aGk_Pz4-"))
	assert.Equal(t, []byte("a"), Base64Decode("YQ"))
	assert.Empty(t, Base64Decode("!!!"))
}

func TestAESRoundTrip(t *testing.T) {
	key := []byte("0CoJUm6Qyw8W8jud")
	iv := []byte("0102030405060708")
	plain := []byte(`{"ids":"[347230]","br":320000}`)

	for _, mode := range []string{"aes-128-cbc", "aes-128-ecb", "CBC", "ECB"} {
		t.Run(mode, func(t *testing.T) {
			enc := AESEncrypt(plain, mode, key, iv)
			require.NotEmpty(t, enc)
			assert.Zero(t, len(enc)%16)
			assert.Equal(t, plain, AESDecrypt(enc, mode, key, iv))
		})
	}
}

func TestAESDegradesOnBadInput(t *testing.T) {
	key := []byte("0123456789abcdef")
	assert.Empty(t, AESEncrypt([]byte("x"), "aes-128-cbc", []byte("short"), nil))
	assert.Empty(t, AESEncrypt([]byte("x"), "aes-128-cbc", key, []byte("bad-iv")))
	assert.Empty(t, AESEncrypt([]byte("x"), "aes-128-gcm", key, nil))
	assert.Empty(t, AESDecrypt([]byte("not a block"), "aes-128-ecb", key, nil))
}

func newKeyPEM(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	return priv, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestRSAEncryptPKCS1(t *testing.T) {
	priv, pub := newKeyPEM(t)

	enc := RSAEncrypt([]byte("secret"), pub, "")
	require.Len(t, enc, 128)

	plain, err := rsa.DecryptPKCS1v15(rand.Reader, priv, enc)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), plain)
}

func TestRSAEncryptNoPadding(t *testing.T) {
	priv, pub := newKeyPEM(t)

	enc := RSAEncrypt([]byte("secret"), pub, PaddingNone)
	require.Len(t, enc, 128)

	c := new(big.Int).SetBytes(enc)
	m := new(big.Int).Exp(c, priv.D, priv.N)
	assert.Equal(t, hex.EncodeToString([]byte("secret")), hex.EncodeToString(m.Bytes()))
}

func TestRSADegradesOnBadKey(t *testing.T) {
	assert.Empty(t, RSAEncrypt([]byte("x"), "not a key", ""))
	assert.Empty(t, RSAEncrypt([]byte("x"), "", PaddingPKCS1))
}

func TestRandomBytes(t *testing.T) {
	assert.Len(t, RandomBytes(16), 16)
	assert.Len(t, RandomBytes(MaxRandomBytes*2), MaxRandomBytes)
	assert.Empty(t, RandomBytes(-1))
	assert.NotEqual(t, RandomBytes(16), RandomBytes(16))
}
