// Package crypto encrypts article bodies with per-article keys.
//
// Ciphertexts produced today are "v2:" followed by base64(nonce || AES-256-GCM sealed body), with the
// AES key derived from the stored key material by HKDF-SHA256. Unmarked hex ciphertexts are the
// previous generation (AES-256-CBC keyed by the OpenSSL EVP_BytesToKey/MD5 passphrase scheme) and
// are still accepted by Decrypt.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/HugoJanow/ArticlePulse/internal/errors"
)

const (
	// CurrentPrefix marks ciphertexts written with the current scheme.
	CurrentPrefix = "v2:"

	keySize = 32
)

var (
	hkdfSalt = []byte("articlepulse-content")
	hkdfInfo = []byte("aes-256-gcm/v2")
)

// Codec encrypts and decrypts article content.
type Codec struct {
	rand io.Reader
}

// New returns a codec reading randomness from crypto/rand.
func New() *Codec {
	return &Codec{rand: rand.Reader}
}

// GenerateKey returns fresh hex-encoded key material for one article.
func (c *Codec) GenerateKey() (string, error) {
	b := make([]byte, keySize)
	if _, err := io.ReadFull(c.rand, b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Encrypt seals plaintext under key with the current scheme.
func (c *Codec) Encrypt(plaintext, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("encryption key required")
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return CurrentPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens ciphertext under key. Any failure is reported as a DECRYPTION_ERROR.
func (c *Codec) Decrypt(ciphertext, key string) (string, error) {
	if strings.HasPrefix(ciphertext, CurrentPrefix) {
		return decryptCurrent(strings.TrimPrefix(ciphertext, CurrentPrefix), key)
	}
	return decryptLegacy(ciphertext, key)
}

// IsLegacy reports whether ciphertext was written by the previous scheme.
func IsLegacy(ciphertext string) bool {
	return ciphertext != "" && !strings.HasPrefix(ciphertext, CurrentPrefix)
}

func newGCM(key string) (cipher.AEAD, error) {
	derived := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(key), hkdfSalt, hkdfInfo), derived); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func decryptCurrent(encoded, key string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Decryption(fmt.Errorf("decode ciphertext: %w", err))
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", errors.Decryption(err)
	}
	if len(data) < gcm.NonceSize()+gcm.Overhead() {
		return "", errors.Decryption(fmt.Errorf("ciphertext too short"))
	}
	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errors.Decryption(err)
	}
	return string(plaintext), nil
}
