package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"github.com/HugoJanow/ArticlePulse/internal/errors"
)

// legacyKeyIV derives an AES-256 key and CBC IV from a passphrase the way OpenSSL's
// EVP_BytesToKey does with MD5, one iteration and no salt.
func legacyKeyIV(passphrase []byte) (key, iv []byte) {
	var (
		out  []byte
		prev []byte
	)
	for len(out) < 32+aes.BlockSize {
		h := md5.New()
		h.Write(prev)
		h.Write(passphrase)
		prev = h.Sum(nil)
		out = append(out, prev...)
	}
	return out[:32], out[32 : 32+aes.BlockSize]
}

func decryptLegacy(hexCiphertext, passphrase string) (string, error) {
	data, err := hex.DecodeString(hexCiphertext)
	if err != nil {
		return "", errors.Decryption(fmt.Errorf("decode legacy ciphertext: %w", err))
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", errors.Decryption(fmt.Errorf("legacy ciphertext is not block aligned"))
	}

	key, iv := legacyKeyIV([]byte(passphrase))
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.Decryption(err)
	}
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data)

	plain, err = pkcs7Unpad(plain)
	if err != nil {
		return "", errors.Decryption(err)
	}
	if !utf8.Valid(plain) {
		return "", errors.Decryption(fmt.Errorf("legacy plaintext is not valid UTF-8"))
	}
	return string(plain), nil
}

func pkcs7Unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("bad padding")
	}
	if !bytes.Equal(b[len(b)-n:], bytes.Repeat([]byte{byte(n)}, n)) {
		return nil, fmt.Errorf("bad padding")
	}
	return b[:len(b)-n], nil
}
