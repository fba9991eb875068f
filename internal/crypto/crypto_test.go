package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/AlexZinkM/split-custody/internal/model"

	"github.com/stretchr/testify/require"
)

var testKDF = &model.KDFParams{MemoryKiB: 19456, Iterations: 2, Parallelism: 1}

func randBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestSplitCombineAnyTwoOfThree(t *testing.T) {
	secret := randBytes(t, 32)
	shares, err := Split(secret, 3, 2)
	require.NoError(t, err)
	require.Len(t, shares, 3)

	pairs := [][2]int{{0, 1}, {0, 2}, {1, 2}, {2, 0}}
	for _, p := range pairs {
		got, err := Combine([][]byte{shares[p[0]], shares[p[1]]})
		require.NoError(t, err)
		require.Equal(t, secret, got)
	}
}

func TestSingleShareRevealsNothingUseful(t *testing.T) {
	secret := randBytes(t, 32)
	shares, err := Split(secret, 3, 2)
	require.NoError(t, err)
	require.False(t, bytes.Equal(secret, shares[0][:32]))

	_, err = Combine([][]byte{shares[0]})
	require.Error(t, err)
}

func TestCombineRejectsMalformedShares(t *testing.T) {
	shares, err := Split(randBytes(t, 32), 3, 2)
	require.NoError(t, err)

	_, err = Combine([][]byte{shares[0], shares[0]})
	require.Error(t, err)

	_, err = Combine([][]byte{shares[0], shares[1][:10]})
	require.Error(t, err)
}

func TestShareARoundTripPerMethod(t *testing.T) {
	share := randBytes(t, 33)

	cases := []struct {
		name       string
		params     KeyParams
		credential []byte
	}{
		{"password", KeyParams{Method: model.AuthMethodPassword, Salt: randBytes(t, 16), KDF: testKDF}, []byte("correct horse")},
		{"pin", KeyParams{Method: model.AuthMethodPIN, Salt: randBytes(t, 16), KDF: testKDF}, []byte("123456")},
		{"passkey", KeyParams{Method: model.AuthMethodPasskeyPRF, PRFSalt: randBytes(t, 32)}, randBytes(t, 32)},
		{"api key", KeyParams{Method: model.AuthMethodAPIKey, Salt: randBytes(t, 32)}, []byte("sk_live_abc")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			nonce, ct, err := EncryptShareA(tc.credential, share, tc.params)
			require.NoError(t, err)
			require.Len(t, nonce, 12)

			w := &model.WalletMaterial{
				AuthMethod:       tc.params.Method,
				ShareASalt:       tc.params.Salt,
				KDF:              tc.params.KDF,
				PRFSalt:          tc.params.PRFSalt,
				ShareANonce:      nonce,
				ShareACiphertext: ct,
			}
			got, err := DecryptShareA(w, tc.credential)
			require.NoError(t, err)
			require.Equal(t, share, got)

			_, err = DecryptShareA(w, []byte("wrong"))
			require.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

func TestPINHash(t *testing.T) {
	hash, err := HashPIN("123456")
	require.NoError(t, err)
	require.Contains(t, hash, "$argon2id$v=19$m=19456,t=2,p=1$")

	ok, err := VerifyPIN("123456", hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = VerifyPIN("654321", hash)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = VerifyPIN("123456", "plain")
	require.Error(t, err)
}

func TestSealerBindsToSession(t *testing.T) {
	s, err := NewSealer(randBytes(t, 32))
	require.NoError(t, err)

	key := randBytes(t, 64)
	sealed, err := s.Seal("session-1", key)
	require.NoError(t, err)

	got, err := s.Open("session-1", sealed)
	require.NoError(t, err)
	require.Equal(t, key, got)

	_, err = s.Open("session-2", sealed)
	require.ErrorIs(t, err, ErrDecrypt)

	_, err = NewSealer([]byte("short"))
	require.Error(t, err)
}

func TestReconstructKeyFromSeedShares(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	shares, err := Split(priv.Seed(), 3, 2)
	require.NoError(t, err)

	buf, err := ReconstructKey(shares[0], shares[2])
	require.NoError(t, err)
	defer buf.Release()

	require.NoError(t, buf.Use(func(key []byte) error {
		require.Equal(t, []byte(pub), key[32:])
		return nil
	}))
}

func TestReconstructKeyFromFullKeyShares(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	shares, err := Split(priv, 3, 2)
	require.NoError(t, err)

	buf, err := ReconstructKey(shares[1], shares[2])
	require.NoError(t, err)
	require.NoError(t, buf.Use(func(key []byte) error {
		require.Equal(t, []byte(priv), key)
		return nil
	}))
	buf.Release()
	require.True(t, buf.Released())
}
