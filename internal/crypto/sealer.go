package crypto

import (
	"errors"

	"github.com/AlexZinkM/split-custody/internal/security"
)

// Sealer encrypts reconstructed keys for storage on a deposit session.
// Each sealed value is bound to its session id so it cannot be moved to another row.
type Sealer struct {
	key security.Secret
}

// NewSealer copies a 32-byte service key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != keyLen {
		return nil, errors.New("session sealing key must be 32 bytes")
	}
	return &Sealer{key: security.FromBytes(key)}, nil
}

// Seal returns nonce||ciphertext for plaintext bound to binding.
func (s *Sealer) Seal(binding string, plaintext []byte) (security.Secret, error) {
	nonce, ciphertext, err := Encrypt(s.key, plaintext, []byte(binding))
	if err != nil {
		return nil, err
	}
	return security.Secret(append(nonce, ciphertext...)), nil
}

// Open reverses Seal. The caller must clear the result.
func (s *Sealer) Open(binding string, sealed security.Secret) ([]byte, error) {
	if len(sealed) <= nonceLen {
		return nil, ErrDecrypt
	}
	return Decrypt(s.key, sealed[:nonceLen], sealed[nonceLen:], []byte(binding))
}
