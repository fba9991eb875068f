package crypto

import (
	"crypto/ed25519"
	"fmt"

	"github.com/AlexZinkM/split-custody/internal/security"
)

// ReconstructKey combines Share A and Share B into a 64-byte ed25519 private key.
// The shared secret is either the 32-byte seed or the full 64-byte key.
// Every intermediate buffer is cleared; the returned buffer must be released by the caller.
func ReconstructKey(shareA, shareB []byte) (*security.KeyBuffer, error) {
	secret, err := Combine([][]byte{shareA, shareB})
	if err != nil {
		return nil, fmt.Errorf("failed to combine shares: %w", err)
	}
	defer clear(secret)

	switch len(secret) {
	case ed25519.SeedSize:
		return security.NewKeyBuffer(ed25519.NewKeyFromSeed(secret)), nil
	case ed25519.PrivateKeySize:
		return security.NewKeyBuffer(append([]byte(nil), secret...)), nil
	default:
		return nil, fmt.Errorf("reconstructed secret has unexpected length %d", len(secret))
	}
}
