package solana

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// SignedTransaction is a wire-encoded transaction and the wallet's signature over it.
type SignedTransaction struct {
	Raw       []byte
	Signature string
}

// LocalSigner signs serialized transactions in process. It never sends them anywhere.
type LocalSigner struct{}

// NewLocalSigner creates a new signer.
func NewLocalSigner() *LocalSigner {
	return &LocalSigner{}
}

// SignTransaction decodes a wire transaction, signs it with key and re-encodes it.
// key must be the only required signer. Existing signatures are discarded.
func (s *LocalSigner) SignTransaction(key []byte, raw []byte) (*SignedTransaction, error) {
	if len(key) != 64 {
		return nil, fmt.Errorf("invalid private key length")
	}
	wallet := solana.PrivateKey(key)
	pubkey := wallet.PublicKey()

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	if required > len(tx.Message.AccountKeys) {
		return nil, fmt.Errorf("malformed transaction header")
	}
	index := -1
	for i, k := range tx.Message.AccountKeys[:required] {
		if k.Equals(pubkey) {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, ErrNotSigner
	}

	// Sign appends one signature per required signer.
	tx.Signatures = nil
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(pubkey) {
			return &wallet
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	out, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	return &SignedTransaction{Raw: out, Signature: tx.Signatures[index].String()}, nil
}
