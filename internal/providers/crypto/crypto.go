// Package crypto holds the cryptographic primitives exposed to scripts.
//
// Every function degrades to an empty result on bad input instead of
// returning an error: script code implements platform signing schemes on
// top of these and must not be able to unwind the host with malformed keys.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"hash"
	"math/big"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// MaxRandomBytes caps a single randomBytes call
const MaxRandomBytes = 4096

var hashes = map[string]func() hash.Hash{
	"md5":      md5.New,
	"sha1":     sha1.New,
	"sha256":   sha256.New,
	"sha512":   sha512.New,
	"sha3":     sha3.New256,
	"sha3-256": sha3.New256,
	"sha3-512": sha3.New512,
	"blake2b": func() hash.Hash {
		h, _ := blake2b.New256(nil)
		return h
	},
}

// Hash returns the lowercase hex digest of data, or "" for unknown kinds
func Hash(kind string, data []byte) string {
	newHash, ok := hashes[strings.ToLower(strings.ReplaceAll(kind, "_", "-"))]
	if !ok {
		return ""
	}
	h := newHash()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MD5 is the digest most platform signing schemes use
func MD5(text string) string {
	return Hash("md5", []byte(text))
}

// Base64Encode uses the standard padded alphabet
func Base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Base64Decode accepts standard or URL alphabets, padded or not
func Base64Decode(s string) []byte {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if out, err := enc.DecodeString(s); err == nil {
			return out
		}
	}
	return []byte{}
}

// blockMode extracts "ecb" or "cbc" from labels like "aes-128-cbc"
func blockMode(mode string) string {
	m := strings.ToLower(mode)
	switch {
	case strings.Contains(m, "ecb"):
		return "ecb"
	case strings.Contains(m, "cbc"), m == "":
		return "cbc"
	default:
		return ""
	}
}

// AESEncrypt encrypts with PKCS#7 padding in ECB or CBC mode
func AESEncrypt(data []byte, mode string, key, iv []byte) []byte {
	block, err := aes.NewCipher(key)
	if err != nil {
		return []byte{}
	}

	padded := pkcs7Pad(data, block.BlockSize())
	out := make([]byte, len(padded))

	switch blockMode(mode) {
	case "ecb":
		for i := 0; i < len(padded); i += block.BlockSize() {
			block.Encrypt(out[i:], padded[i:])
		}
	case "cbc":
		if len(iv) != block.BlockSize() {
			return []byte{}
		}
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	default:
		return []byte{}
	}
	return out
}

// AESDecrypt reverses AESEncrypt
func AESDecrypt(data []byte, mode string, key, iv []byte) []byte {
	block, err := aes.NewCipher(key)
	if err != nil || len(data) == 0 || len(data)%block.BlockSize() != 0 {
		return []byte{}
	}

	out := make([]byte, len(data))
	switch blockMode(mode) {
	case "ecb":
		for i := 0; i < len(data); i += block.BlockSize() {
			block.Decrypt(out[i:], data[i:])
		}
	case "cbc":
		if len(iv) != block.BlockSize() {
			return []byte{}
		}
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	default:
		return []byte{}
	}

	plain, ok := pkcs7Unpad(out, block.BlockSize())
	if !ok {
		return []byte{}
	}
	return plain
}

func pkcs7Pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, size int) ([]byte, bool) {
	if len(data) == 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > size || n > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}

// RSA padding schemes understood by RSAEncrypt
const (
	PaddingPKCS1 = "pkcs1"
	PaddingNone  = "none"
)

// RSAEncrypt encrypts data with a PEM (or bare base64 DER) public key.
// PaddingNone performs textbook RSA on the left-zero-padded block, which
// some platform web clients require.
func RSAEncrypt(data []byte, publicKey, padding string) []byte {
	pub := parsePublicKey(publicKey)
	if pub == nil {
		return []byte{}
	}

	switch strings.ToLower(padding) {
	case "", PaddingPKCS1:
		out, err := rsa.EncryptPKCS1v15(rand.Reader, pub, data)
		if err != nil {
			return []byte{}
		}
		return out
	case PaddingNone, "no", "nopadding":
		k := pub.Size()
		if len(data) > k {
			return []byte{}
		}
		m := new(big.Int).SetBytes(data)
		if m.Cmp(pub.N) >= 0 {
			return []byte{}
		}
		c := new(big.Int).Exp(m, big.NewInt(int64(pub.E)), pub.N)
		return c.FillBytes(make([]byte, k))
	default:
		return []byte{}
	}
}

func parsePublicKey(key string) *rsa.PublicKey {
	var der []byte
	if block, _ := pem.Decode([]byte(strings.TrimSpace(key))); block != nil {
		der = block.Bytes
	} else {
		der = Base64Decode(strings.Join(strings.Fields(key), ""))
	}
	if len(der) == 0 {
		return nil
	}

	if k, err := x509.ParsePKIXPublicKey(der); err == nil {
		if pub, ok := k.(*rsa.PublicKey); ok {
			return pub
		}
		return nil
	}
	if pub, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return pub
	}
	return nil
}

// RandomBytes returns n cryptographically random bytes, capped at MaxRandomBytes
func RandomBytes(n int) []byte {
	if n <= 0 {
		return []byte{}
	}
	if n > MaxRandomBytes {
		n = MaxRandomBytes
	}
	out := make([]byte, n)
	if _, err := rand.Read(out); err != nil {
		return []byte{}
	}
	return out
}
