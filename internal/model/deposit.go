package model

import (
	"time"

	"github.com/AlexZinkM/split-custody/internal/security"
)

// DepositStatus is the lifecycle state of a deposit session.
type DepositStatus string

const (
	DepositStatusPending            DepositStatus = "pending"
	DepositStatusDetected           DepositStatus = "detected"
	DepositStatusProcessing         DepositStatus = "processing"
	DepositStatusCompleted          DepositStatus = "completed"
	DepositStatusPartiallyWithdrawn DepositStatus = "partially_withdrawn"
	DepositStatusWithdrawn          DepositStatus = "withdrawn"
	DepositStatusExpired            DepositStatus = "expired"
	DepositStatusFailed             DepositStatus = "failed"
	DepositStatusPendingBatch       DepositStatus = "pending_batch"
	DepositStatusBatching           DepositStatus = "batching"
	DepositStatusBatched            DepositStatus = "batched"
)

// Terminal reports whether no further transition is allowed.
func (s DepositStatus) Terminal() bool {
	switch s {
	case DepositStatusWithdrawn, DepositStatusExpired, DepositStatusFailed, DepositStatusBatched:
		return true
	}
	return false
}

// WalletKind distinguishes custodial wallets from user-controlled ones.
type WalletKind string

const (
	WalletKindEmbedded WalletKind = "embedded"
	WalletKindExternal WalletKind = "external"
)

// DepositKind selects the deposit path.
type DepositKind string

const (
	DepositKindPrivate DepositKind = "private"
	DepositKindPublic  DepositKind = "public"
	DepositKindMicro   DepositKind = "micro"
)

// CurrencySOL is the native currency. Anything else goes through swap-and-deposit.
const CurrencySOL = "SOL"

// DepositSession tracks one deposit from detection to withdrawal or batching.
type DepositSession struct {
	ID            string
	UserID        string
	WalletAddress string
	WalletKind    WalletKind
	DepositKind   DepositKind
	Currency      string
	// InputMint is the SPL mint for non-native deposits.
	InputMint string
	Status    DepositStatus

	DetectedAmount    uint64
	DetectedSignature string
	DepositSignature  string

	DepositAmountLamports   uint64
	WithdrawnAmountLamports uint64

	CompletedAt           *time.Time
	WithdrawalAvailableAt *time.Time
	WithdrawnAt           *time.Time
	ExpiresAt             time.Time

	// StoredShareB is the sealed reconstructed key, held only while funds remain.
	StoredShareB security.Secret `json:"-"`

	ProcessingAttempts  int
	LastProcessingError string

	BatchID          string
	BatchedAt        *time.Time
	BatchTxSignature string

	// BatchCollectSignature is the transfer that moved the funds into the pool.
	// Once set the member is never collected again.
	BatchCollectSignature string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RemainingLamports is deposit minus withdrawn, never negative.
func (s *DepositSession) RemainingLamports() uint64 {
	if s.WithdrawnAmountLamports >= s.DepositAmountLamports {
		return 0
	}
	return s.DepositAmountLamports - s.WithdrawnAmountLamports
}

// HasStoredKey reports whether a sealed key is present.
func (s *DepositSession) HasStoredKey() bool {
	return len(s.StoredShareB) > 0
}
