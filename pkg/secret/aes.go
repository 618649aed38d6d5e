// Package secret decrypts exchange API secrets stored by the account manager.
//
// Ciphertexts are "<iv hex>:<data hex>", AES-256-CBC with PKCS#7 padding, keyed
// by sha256 of the shared credential secret.
package secret

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformed = errors.New("malformed ciphertext")
	ErrPadding   = errors.New("invalid padding")
)

// Cipher decrypts (and, for tooling and tests, encrypts) credential strings.
type Cipher struct {
	key [32]byte
}

// NewCipher derives the AES-256 key from the shared secret.
func NewCipher(sharedSecret string) *Cipher {
	return &Cipher{key: sha256.Sum256([]byte(sharedSecret))}
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(encrypted string) (string, error) {
	ivHex, dataHex, ok := strings.Cut(strings.TrimSpace(encrypted), ":")
	if !ok {
		return "", fmt.Errorf("decryption failed: %w", ErrMalformed)
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", fmt.Errorf("decryption failed: bad iv: %w", ErrMalformed)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil || len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", fmt.Errorf("decryption failed: bad data: %w", ErrMalformed)
	}

	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}

	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data)

	plain, err = unpad(plain)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return string(plain), nil
}

// Encrypt produces "<iv hex>:<data hex>" with a random IV.
func (c *Cipher) Encrypt(plain string) (string, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return "", err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	data := pad([]byte(plain))
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, ErrPadding
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, ErrPadding
		}
	}
	return b[:len(b)-n], nil
}
