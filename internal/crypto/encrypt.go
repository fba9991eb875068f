package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// newGCM builds AES-256-GCM for a 32-byte key.
func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}

// Encrypt seals plaintext under key with a fresh 12-byte nonce.
func Encrypt(key, plaintext, aad []byte) (nonce, ciphertext []byte, err error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return nonce, aesGCM.Seal(nil, nonce, plaintext, aad), nil
}

// EncryptShareA derives the Share A key from credential and encrypts share with it.
// Enrollment clients do this on their side; the server uses it when re-wrapping in tooling and tests.
func EncryptShareA(credential, share []byte, p KeyParams) (nonce, ciphertext []byte, err error) {
	key, err := DeriveShareAKey(credential, p)
	if err != nil {
		return nil, nil, err
	}
	defer clear(key)

	return Encrypt(key, share, nil)
}
