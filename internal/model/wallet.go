package model

import (
	"time"

	"github.com/AlexZinkM/split-custody/internal/security"
)

// AuthMethod tags how Share A is encrypted.
type AuthMethod string

const (
	AuthMethodPassword   AuthMethod = "password"
	AuthMethodPIN        AuthMethod = "pin"
	AuthMethodPasskeyPRF AuthMethod = "passkey_prf"
	AuthMethodAPIKey     AuthMethod = "api_key"
)

// Valid reports whether m is a known method.
func (m AuthMethod) Valid() bool {
	switch m {
	case AuthMethodPassword, AuthMethodPIN, AuthMethodPasskeyPRF, AuthMethodAPIKey:
		return true
	}
	return false
}

// UsesArgon2 reports whether the Share A key is derived with Argon2id.
func (m AuthMethod) UsesArgon2() bool {
	return m == AuthMethodPassword || m == AuthMethodPIN
}

const (
	// ContextPrimary is the signing context of a user's main wallet.
	ContextPrimary = "primary"

	// SchemeVersion is written on every enrollment.
	SchemeVersion = 1
)

// KDFParams are the Argon2id cost parameters stored with a password or PIN wallet.
type KDFParams struct {
	MemoryKiB   uint32 `json:"memoryKiB"`
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
}

// WalletMaterial is the stored half of a split key for one (user, context).
type WalletMaterial struct {
	ID            string
	UserID        string
	Context       string
	PublicKey     string
	SchemeVersion int
	AuthMethod    AuthMethod

	ShareACiphertext []byte
	ShareANonce      []byte
	// ShareASalt is the Argon2id salt for password/PIN or the HKDF salt for API keys.
	ShareASalt []byte
	KDF        *KDFParams
	PRFSalt    []byte
	PINHash    string

	ShareB   security.Secret `json:"-"`
	APIKeyID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShareAUpdate is the full replacement of the Share A path used by rotation.
type ShareAUpdate struct {
	AuthMethod       AuthMethod
	ShareACiphertext []byte
	ShareANonce      []byte
	ShareASalt       []byte
	KDF              *KDFParams
	PRFSalt          []byte
	PINHash          string
	APIKeyID         string
}

// RotationEvent names a provenance entry.
type RotationEvent string

const (
	RotationEventRotated RotationEvent = "rotated"
	RotationEventDeleted RotationEvent = "deleted"
)

// RotationHistoryEntry records a Share A replacement or wallet deletion.
// It never carries share bytes.
type RotationHistoryEntry struct {
	ID             string
	UserID         string
	Context        string
	PublicKey      string
	Event          RotationEvent
	PreviousMethod AuthMethod
	NewMethod      AuthMethod
	CreatedAt      time.Time
}
