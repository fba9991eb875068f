// Package db persists wallet material, deposit sessions and privacy notes.
// Every state transition is a single check-and-mutate operation so concurrent
// workers never observe or act on a stale status.
package db

import (
	"context"
	"time"

	"github.com/AlexZinkM/split-custody/internal/model"
	"github.com/AlexZinkM/split-custody/internal/security"
)

// WalletStore persists WalletMaterial.
type WalletStore interface {
	CreateWallet(ctx context.Context, w *model.WalletMaterial) error
	GetWallet(ctx context.Context, userID, walletContext string) (*model.WalletMaterial, error)
	GetWalletByPublicKey(ctx context.Context, publicKey string) (*model.WalletMaterial, error)
	// ReplaceShareA swaps only the Share A columns. Share B and the public key are never written.
	ReplaceShareA(ctx context.Context, userID, walletContext string, u model.ShareAUpdate, at time.Time) error
	DeleteWallet(ctx context.Context, userID, walletContext string) error
}

// RotationHistory records provenance for Share A replacements and deletions.
type RotationHistory interface {
	RecordRotation(ctx context.Context, e *model.RotationHistoryEntry) error
	ListRotations(ctx context.Context, userID string) ([]model.RotationHistoryEntry, error)
}

// Completion carries the values written when a deposit leaves processing for the first time.
type Completion struct {
	AmountLamports   uint64
	DepositSignature string
	SealedKey        security.Secret
	CompletedAt      time.Time
	// AvailableAt is nil for micro deposits, which are never claimed individually.
	AvailableAt *time.Time
}

// BatchRelease describes why batching members go back to pending_batch.
type BatchRelease struct {
	Reason       string
	// CountAttempt is false when the members did nothing wrong, for example
	// when the collected total fell below the batch threshold.
	CountAttempt bool
	At           time.Time
}

// BatchResult stamps every member of a completed micro-batch.
type BatchResult struct {
	BatchID     string
	TxSignature string
	BatchedAt   time.Time
}

// DepositStore persists DepositSession and exposes its atomic transitions.
type DepositStore interface {
	CreateDeposit(ctx context.Context, s *model.DepositSession) error
	GetDeposit(ctx context.Context, id string) (*model.DepositSession, error)

	// MarkDetected moves pending -> detected.
	MarkDetected(ctx context.Context, id string, amount uint64, signature string, at time.Time) error
	// MarkProcessing moves detected -> processing.
	MarkProcessing(ctx context.Context, id string, at time.Time) error
	// MarkCompleted moves processing -> completed and stores the sealed key.
	MarkCompleted(ctx context.Context, id string, c Completion) error
	// MarkPendingBatch moves processing -> pending_batch and stores the sealed key.
	MarkPendingBatch(ctx context.Context, id string, c Completion) error
	// RevertProcessing returns a processing session to detected, completed or
	// partially_withdrawn and counts one failed attempt.
	RevertProcessing(ctx context.Context, id, reason string, at time.Time) error
	// MarkFailed moves any non-terminal session to failed and counts one failed attempt.
	MarkFailed(ctx context.Context, id, reason string, at time.Time) error

	// ClaimWithdrawable selects up to limit eligible sessions, soonest available
	// first, and marks them processing in the same indivisible step.
	ClaimWithdrawable(ctx context.Context, now time.Time, limit int) ([]*model.DepositSession, error)
	// RecordWithdrawal adds amount to a processing session and moves it to
	// partially_withdrawn, or to withdrawn with the sealed key wiped.
	RecordWithdrawal(ctx context.Context, id string, amount uint64, at time.Time) (*model.DepositSession, error)

	// ExpirePending moves pending sessions past their TTL to expired.
	ExpirePending(ctx context.Context, now time.Time) (int, error)
	// DeletePending removes a pending session with no detected amount.
	DeletePending(ctx context.Context, id string) error

	SumPendingBatchLamports(ctx context.Context) (total uint64, count int, err error)
	ListDepositsByStatus(ctx context.Context, status model.DepositStatus) ([]*model.DepositSession, error)
	// ClaimPendingBatch moves every pending_batch session to batching under
	// batchID in one step and returns the claimed members oldest first.
	ClaimPendingBatch(ctx context.Context, batchID string, at time.Time) ([]*model.DepositSession, error)
	// MarkBatchCollected records the transfer of a batching member's funds into the pool.
	MarkBatchCollected(ctx context.Context, id, batchID, signature string, at time.Time) error
	// ReleaseBatch returns batching members of batchID to pending_batch,
	// every id or none of them. The collect signature is kept.
	ReleaseBatch(ctx context.Context, ids []string, batchID string, r BatchRelease) error
	// MarkBatchComplete stamps every batching member of b.BatchID in ids, or none of them.
	MarkBatchComplete(ctx context.Context, ids []string, b BatchResult) error
}

// NoteUpdate carries the optional columns of a privacy note transition.
type NoteUpdate struct {
	LastError         string
	TxSignature       string
	IncrementAttempts bool
	At                time.Time
}

// PrivacyNoteStore persists PrivacyNote.
type PrivacyNoteStore interface {
	CreateNote(ctx context.Context, n *model.PrivacyNote) error
	GetNoteByDeposit(ctx context.Context, depositID string) (*model.PrivacyNote, error)
	// TransitionNote moves a note from -> to only if it is still in from.
	TransitionNote(ctx context.Context, id string, from, to model.PrivacyNoteStatus, u NoteUpdate) error
}

// Store is the full persistence contract.
type Store interface {
	WalletStore
	RotationHistory
	DepositStore
	PrivacyNoteStore
	Close() error
}

var claimableStatuses = []model.DepositStatus{
	model.DepositStatusCompleted,
	model.DepositStatusPartiallyWithdrawn,
}

var nonTerminalStatuses = []model.DepositStatus{
	model.DepositStatusPending,
	model.DepositStatusDetected,
	model.DepositStatusProcessing,
	model.DepositStatusCompleted,
	model.DepositStatusPartiallyWithdrawn,
	model.DepositStatusPendingBatch,
	model.DepositStatusBatching,
}

// revertTarget is the status a processing session returns to after a failed attempt.
func revertTarget(s *model.DepositSession) model.DepositStatus {
	switch {
	case s.CompletedAt == nil:
		return model.DepositStatusDetected
	case s.WithdrawnAmountLamports > 0:
		return model.DepositStatusPartiallyWithdrawn
	default:
		return model.DepositStatusCompleted
	}
}

func utc(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
