package crypto

import "errors"

var (
	// ErrDecrypt is returned when GCM authentication fails, which for Share A means a wrong credential.
	ErrDecrypt = errors.New("invalid credentials")

	// ErrKeyMismatch is returned when reconstructed key material does not match the enrolled public key.
	ErrKeyMismatch = errors.New("reconstructed key does not match public key")
)
