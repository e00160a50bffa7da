package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

const AESKeySize = 32

// EncryptAESWithAAD seals plaintext with AES-256-GCM and returns
// nonce || ciphertext. The AAD binds the ciphertext to its storage key.
func EncryptAESWithAAD(plainText, rawKey, aad []byte) ([]byte, error) {
	if len(rawKey) != AESKeySize {
		return nil, fmt.Errorf("invalid AES key size: got %d, want %d", len(rawKey), AESKeySize)
	}

	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plainText, aad), nil
}

// DecryptAESWithAAD opens a nonce || ciphertext blob produced by
// EncryptAESWithAAD.
func DecryptAESWithAAD(cipherText, rawKey, aad []byte) ([]byte, error) {
	if len(rawKey) != AESKeySize {
		return nil, fmt.Errorf("invalid AES key size: got %d, want %d", len(rawKey), AESKeySize)
	}

	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	if len(cipherText) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce size")
	}
	nonce, cipherText := cipherText[:gcm.NonceSize()], cipherText[gcm.NonceSize():]

	plainText, err := gcm.Open(nil, nonce, cipherText, aad)
	if err != nil {
		return nil, fmt.Errorf("decrypting ciphertext: %w", err)
	}
	return plainText, nil
}
