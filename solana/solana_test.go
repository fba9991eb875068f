package solana

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transferTx(t *testing.T, from solana.PublicKey) []byte {
	t.Helper()
	to := solana.NewWallet().PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1000, from, to).Build()},
		solana.Hash{},
		solana.TransactionPayer(from),
	)
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func TestSignTransaction(t *testing.T) {
	wallet := solana.NewWallet()
	raw := transferTx(t, wallet.PublicKey())

	signed, err := NewLocalSigner().SignTransaction(wallet.PrivateKey, raw)
	require.NoError(t, err)

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(signed.Raw))
	require.NoError(t, err)
	require.Len(t, tx.Signatures, 1)
	assert.Equal(t, tx.Signatures[0].String(), signed.Signature)

	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(ed25519.PublicKey(wallet.PublicKey().Bytes()), msg, tx.Signatures[0][:]))
}

func TestSignTransactionRejectsForeignKey(t *testing.T) {
	payer := solana.NewWallet()
	other := solana.NewWallet()
	_, err := NewLocalSigner().SignTransaction(other.PrivateKey, transferTx(t, payer.PublicKey()))
	assert.ErrorIs(t, err, ErrNotSigner)
}

func TestSignTransactionRejectsGarbage(t *testing.T) {
	wallet := solana.NewWallet()
	_, err := NewLocalSigner().SignTransaction(wallet.PrivateKey, []byte{0x01})
	assert.Error(t, err)

	_, err = NewLocalSigner().SignTransaction(wallet.PrivateKey[:32], transferTx(t, wallet.PublicKey()))
	assert.Error(t, err)
}

func TestVerifyKeyMatches(t *testing.T) {
	wallet := solana.NewWallet()
	address := wallet.PublicKey().String()

	got, err := PublicKeyFromPrivate(wallet.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, address, got)

	assert.NoError(t, VerifyKeyMatches(wallet.PrivateKey, address))
	assert.ErrorIs(t, VerifyKeyMatches(solana.NewWallet().PrivateKey, address), ErrKeyMismatch)
	assert.Error(t, VerifyKeyMatches(wallet.PrivateKey, "not-base58-0OIl"))
}

func TestGenerateQRCode(t *testing.T) {
	address := solana.NewWallet().PublicKey().String()
	assert.Equal(t, "solana:"+address, DepositURI(address))

	qr, err := GenerateQRCode(address)
	require.NoError(t, err)
	png, err := base64.StdEncoding.DecodeString(qr)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}
