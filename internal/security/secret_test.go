package security

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSecretRedaction(t *testing.T) {
	s := FromBytes([]byte("share-b-bytes"))

	require.Equal(t, "[REDACTED]", s.String())
	require.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	require.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", s))
	require.Equal(t, "[REDACTED]", fmt.Sprintf("%x", s))

	out, err := json.Marshal(struct {
		Share Secret `json:"share"`
	}{Share: s})
	require.NoError(t, err)
	require.JSONEq(t, `{"share":"[REDACTED]"}`, string(out))
}

func TestSecretScanCopies(t *testing.T) {
	buf := []byte{1, 2, 3}
	var s Secret
	require.NoError(t, s.Scan(buf))
	buf[0] = 9
	require.Equal(t, byte(1), s[0])

	require.NoError(t, s.Scan(nil))
	require.Nil(t, s)
}

func TestSecretWipe(t *testing.T) {
	s := FromBytes([]byte{7, 7, 7})
	s.Wipe()
	require.Equal(t, []byte{0, 0, 0}, []byte(s))
}

func TestKeyBufferRelease(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	b := NewKeyBuffer(raw)

	err := b.Use(func(key []byte) error {
		require.Equal(t, []byte{1, 2, 3, 4}, key)
		return nil
	})
	require.NoError(t, err)

	b.Release()
	b.Release()
	require.True(t, b.Released())
	require.Equal(t, []byte{0, 0, 0, 0}, raw)
	require.ErrorIs(t, b.Use(func([]byte) error { return nil }), ErrReleased)
}

func TestKeyBufferReleasedOnPanic(t *testing.T) {
	raw := []byte{5, 5}
	func() {
		defer func() { _ = recover() }()
		b := NewKeyBuffer(raw)
		defer b.Release()
		panic("signer blew up")
	}()
	require.Equal(t, []byte{0, 0}, raw)
}
