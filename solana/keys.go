package solana

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrKeyMismatch means the reconstructed key does not belong to the expected address.
	ErrKeyMismatch = errors.New("private key does not match address")

	// ErrNotSigner means the transaction does not require a signature from the wallet.
	ErrNotSigner = errors.New("wallet is not a required signer of the transaction")
)

// PublicKeyFromPrivate returns the base58 address of a 64-byte ed25519 key.
func PublicKeyFromPrivate(key []byte) (string, error) {
	if len(key) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("invalid private key length")
	}
	return solana.PrivateKey(key).PublicKey().String(), nil
}

// VerifyKeyMatches checks that key derives address.
func VerifyKeyMatches(key []byte, address string) error {
	expected, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return fmt.Errorf("invalid private key length")
	}
	if !solana.PrivateKey(key).PublicKey().Equals(expected) {
		return ErrKeyMismatch
	}
	return nil
}
