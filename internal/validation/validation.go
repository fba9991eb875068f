// Package validation checks wallet material before it reaches the custody store.
package validation

import (
	"github.com/AlexZinkM/split-custody/internal/apperr"
	"github.com/AlexZinkM/split-custody/internal/model"

	"github.com/gagliardetto/solana-go"
)

// Argon2id bounds accepted for password and PIN wallets.
const (
	MinArgonMemoryKiB   = 19456
	MaxArgonMemoryKiB   = 1048576
	MinArgonIterations  = 2
	MaxArgonIterations  = 10
	MinArgonParallelism = 1
	MaxArgonParallelism = 16

	MinSaltLen = 16
	MaxSaltLen = 64
	NonceLen   = 12
	PRFSaltLen = 32
	PINLen     = 6

	MaxShareLen = 128
)

// ShareA is the Share A path shared by enrollment and rotation.
type ShareA struct {
	Method     model.AuthMethod
	Ciphertext []byte
	Nonce      []byte
	Salt       []byte
	KDF        *model.KDFParams
	PRFSalt    []byte
	PIN        string
	APIKeyID   string
}

// Enrollment validates a full enrollment request.
func Enrollment(req *model.EnrollRequest) error {
	if err := PublicKey(req.PublicKey); err != nil {
		return err
	}
	if len(req.ShareB) < 2 || len(req.ShareB) > MaxShareLen {
		return apperr.Validation("shareB has invalid length")
	}
	return ShareAPath(ShareA{
		Method:     req.AuthMethod,
		Ciphertext: req.ShareACiphertext,
		Nonce:      req.ShareANonce,
		Salt:       req.ShareASalt,
		KDF:        req.KDF,
		PRFSalt:    req.PRFSalt,
		PIN:        req.PIN,
		APIKeyID:   req.APIKeyID,
	})
}

// Rotation validates a rotation request.
func Rotation(req *model.RotateRequest) error {
	return ShareAPath(ShareA{
		Method:     req.AuthMethod,
		Ciphertext: req.ShareACiphertext,
		Nonce:      req.ShareANonce,
		Salt:       req.ShareASalt,
		KDF:        req.KDF,
		PRFSalt:    req.PRFSalt,
		PIN:        req.PIN,
		APIKeyID:   req.APIKeyID,
	})
}

// ShareAPath checks that exactly the fields of the tagged method are populated and well formed.
func ShareAPath(s ShareA) error {
	if !s.Method.Valid() {
		return apperr.Validation("unknown auth method %q", s.Method)
	}
	if len(s.Ciphertext) == 0 || len(s.Ciphertext) > MaxShareLen+16 {
		return apperr.Validation("shareA ciphertext has invalid length")
	}
	if len(s.Nonce) != NonceLen {
		return apperr.Validation("shareA nonce must be %d bytes", NonceLen)
	}

	switch s.Method {
	case model.AuthMethodPassword, model.AuthMethodPIN:
		if len(s.PRFSalt) != 0 {
			return apperr.Validation("prfSalt is only allowed for passkey wallets")
		}
		if err := Salt(s.Salt); err != nil {
			return err
		}
		if err := KDF(s.KDF); err != nil {
			return err
		}
		if s.Method == model.AuthMethodPIN {
			if err := PIN(s.PIN); err != nil {
				return err
			}
		} else if s.PIN != "" {
			return apperr.Validation("pin is only allowed for pin wallets")
		}
	case model.AuthMethodPasskeyPRF:
		if s.KDF != nil || len(s.Salt) != 0 || s.PIN != "" {
			return apperr.Validation("passkey wallets carry only a prf salt")
		}
		if len(s.PRFSalt) != PRFSaltLen {
			return apperr.Validation("prfSalt must be %d bytes", PRFSaltLen)
		}
	case model.AuthMethodAPIKey:
		if s.KDF != nil || len(s.PRFSalt) != 0 || s.PIN != "" {
			return apperr.Validation("api key wallets carry only an hkdf salt")
		}
		if err := Salt(s.Salt); err != nil {
			return err
		}
		if s.APIKeyID == "" {
			return apperr.Validation("apiKeyId is required for api key wallets")
		}
	}
	return nil
}

// KDF checks Argon2id cost bounds.
func KDF(p *model.KDFParams) error {
	if p == nil {
		return apperr.Validation("kdf parameters are required")
	}
	if p.MemoryKiB < MinArgonMemoryKiB || p.MemoryKiB > MaxArgonMemoryKiB {
		return apperr.Validation("kdf memory must be between %d and %d KiB", MinArgonMemoryKiB, MaxArgonMemoryKiB)
	}
	if p.Iterations < MinArgonIterations || p.Iterations > MaxArgonIterations {
		return apperr.Validation("kdf iterations must be between %d and %d", MinArgonIterations, MaxArgonIterations)
	}
	if p.Parallelism < MinArgonParallelism || p.Parallelism > MaxArgonParallelism {
		return apperr.Validation("kdf parallelism must be between %d and %d", MinArgonParallelism, MaxArgonParallelism)
	}
	return nil
}

// Salt checks a KDF salt length.
func Salt(salt []byte) error {
	if len(salt) < MinSaltLen || len(salt) > MaxSaltLen {
		return apperr.Validation("salt must be between %d and %d bytes", MinSaltLen, MaxSaltLen)
	}
	return nil
}

// PIN requires exactly six ASCII digits.
func PIN(pin string) error {
	if len(pin) != PINLen {
		return apperr.Validation("pin must be exactly %d digits", PINLen)
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return apperr.Validation("pin must be exactly %d digits", PINLen)
		}
	}
	return nil
}

// PublicKey checks a base58 Solana address.
func PublicKey(address string) error {
	if address == "" {
		return apperr.Validation("public key is required")
	}
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return apperr.Validation("invalid public key: %v", err)
	}
	return nil
}

// Signature checks a base58 transaction signature.
func Signature(sig string) error {
	if _, err := solana.SignatureFromBase58(sig); err != nil {
		return apperr.Validation("invalid transaction signature: %v", err)
	}
	return nil
}
