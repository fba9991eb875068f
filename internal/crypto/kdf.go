package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/AlexZinkM/split-custody/internal/model"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	keyLen   = 32
	nonceLen = 12

	hkdfInfoPasskey = "split-custody/share-a/passkey-prf/v1"
	hkdfInfoAPIKey  = "split-custody/share-a/api-key/v1"
)

// KeyParams are the stored inputs that, together with the credential, derive the Share A key.
type KeyParams struct {
	Method  model.AuthMethod
	Salt    []byte
	KDF     *model.KDFParams
	PRFSalt []byte
}

// ParamsFor extracts the key derivation inputs of a wallet.
func ParamsFor(w *model.WalletMaterial) KeyParams {
	return KeyParams{Method: w.AuthMethod, Salt: w.ShareASalt, KDF: w.KDF, PRFSalt: w.PRFSalt}
}

// DeriveShareAKey derives the 32-byte AES key for Share A from the credential.
// Password and PIN use Argon2id, passkey PRF output and API keys use HKDF-SHA256.
// The caller must clear the returned key.
func DeriveShareAKey(credential []byte, p KeyParams) ([]byte, error) {
	if len(credential) == 0 {
		return nil, errors.New("empty credential")
	}

	switch p.Method {
	case model.AuthMethodPassword, model.AuthMethodPIN:
		if p.KDF == nil {
			return nil, errors.New("missing argon2id parameters")
		}
		return argon2.IDKey(credential, p.Salt, p.KDF.Iterations, p.KDF.MemoryKiB, p.KDF.Parallelism, keyLen), nil
	case model.AuthMethodPasskeyPRF:
		return hkdfKey(credential, p.PRFSalt, hkdfInfoPasskey)
	case model.AuthMethodAPIKey:
		return hkdfKey(credential, p.Salt, hkdfInfoAPIKey)
	default:
		return nil, fmt.Errorf("unsupported auth method %q", p.Method)
	}
}

func hkdfKey(secret, salt []byte, info string) ([]byte, error) {
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(info)), key); err != nil {
		clear(key)
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}
