package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfWrapped(t *testing.T) {
	base := NotFound("wallet %s not found", "u1")
	wrapped := fmt.Errorf("failed to load wallet: %w", base)

	require.Equal(t, KindNotFound, KindOf(wrapped))
	require.True(t, Is(wrapped, KindNotFound))
	require.False(t, Is(wrapped, KindConflict))
	require.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestPublicMessageHidesInternal(t *testing.T) {
	err := Internal("failed to update session", errors.New("pq: connection refused on 10.0.0.3"))
	require.Equal(t, "internal error", PublicMessage(err))
	require.Equal(t, "internal error", PublicMessage(errors.New("raw driver error")))

	unavailable := Unavailable("sidecar unavailable", errors.New("dial tcp 10.0.0.9:8080"))
	require.Equal(t, "sidecar unavailable", PublicMessage(unavailable))

	require.Equal(t, "pin must be exactly 6 digits", PublicMessage(Validation("pin must be exactly 6 digits")))
}
