package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/AlexZinkM/split-custody/internal/security"

	"github.com/stretchr/testify/require"
)

func TestRemainingLamports(t *testing.T) {
	d := &DepositSession{DepositAmountLamports: 1_000_000_000, WithdrawnAmountLamports: 400_000_000}
	require.Equal(t, uint64(600_000_000), d.RemainingLamports())

	d.WithdrawnAmountLamports = 1_200_000_000
	require.Zero(t, d.RemainingLamports())
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []DepositStatus{DepositStatusWithdrawn, DepositStatusExpired, DepositStatusFailed, DepositStatusBatched} {
		require.True(t, s.Terminal(), s)
	}
	for _, s := range []DepositStatus{DepositStatusPending, DepositStatusProcessing, DepositStatusPartiallyWithdrawn, DepositStatusPendingBatch, DepositStatusBatching} {
		require.False(t, s.Terminal(), s)
	}
}

func TestPrivacyNoteTransitions(t *testing.T) {
	require.True(t, PrivacyNoteStatusPending.CanTransition(PrivacyNoteStatusActive))
	require.True(t, PrivacyNoteStatusActive.CanTransition(PrivacyNoteStatusWithdrawalPending))
	require.True(t, PrivacyNoteStatusWithdrawalPending.CanTransition(PrivacyNoteStatusWithdrawn))
	require.True(t, PrivacyNoteStatusWithdrawalFailed.CanTransition(PrivacyNoteStatusWithdrawalPending))

	require.False(t, PrivacyNoteStatusPending.CanTransition(PrivacyNoteStatusWithdrawn))
	require.False(t, PrivacyNoteStatusWithdrawn.CanTransition(PrivacyNoteStatusWithdrawalPending))
	require.False(t, PrivacyNoteStatusActive.CanTransition(PrivacyNoteStatusActive))
}

func TestDepositResponseOmitsKeyMaterial(t *testing.T) {
	available := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	d := &DepositSession{
		ID:                      "dep-1",
		Status:                  DepositStatusPartiallyWithdrawn,
		DepositAmountLamports:   2_500_000_000,
		WithdrawnAmountLamports: 1_000_000_000,
		WithdrawalAvailableAt:   &available,
		StoredShareB:            security.Secret{9, 9, 9},
	}

	resp := NewDepositResponse(d)
	require.Equal(t, uint64(1_500_000_000), resp.RemainingLamports)
	require.Equal(t, "2.500000000", resp.DepositSOL)
	require.Equal(t, &available, resp.WithdrawalAvailableAt)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "CQkJ") // base64 of 09 09 09
}

func TestWalletResponseOmitsShares(t *testing.T) {
	w := &WalletMaterial{
		UserID:           "user-1",
		Context:          ContextPrimary,
		PublicKey:        "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T",
		AuthMethod:       AuthMethodPIN,
		SchemeVersion:    SchemeVersion,
		ShareACiphertext: []byte{1, 2, 3},
		ShareB:           security.Secret{4, 5, 6},
	}

	raw, err := json.Marshal(NewWalletResponse(w))
	require.NoError(t, err)
	require.Contains(t, string(raw), `"authMethod":"pin"`)
	require.NotContains(t, string(raw), "share")
}

func TestSidecarHealthy(t *testing.T) {
	require.True(t, SidecarHealthResponse{Status: "ok", Checks: SidecarHealthChecks{RPCConnected: true}}.Healthy())
	require.False(t, SidecarHealthResponse{Status: "ok"}.Healthy())
	require.False(t, SidecarHealthResponse{Status: "degraded", Checks: SidecarHealthChecks{RPCConnected: true}}.Healthy())
}
