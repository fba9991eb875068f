package model

import "time"

// PrivacyNoteStatus is the lifecycle of a privacy-protocol commitment.
type PrivacyNoteStatus string

const (
	PrivacyNoteStatusPending           PrivacyNoteStatus = "pending"
	PrivacyNoteStatusActive            PrivacyNoteStatus = "active"
	PrivacyNoteStatusWithdrawalPending PrivacyNoteStatus = "withdrawal_pending"
	PrivacyNoteStatusWithdrawn         PrivacyNoteStatus = "withdrawn"
	PrivacyNoteStatusWithdrawalFailed  PrivacyNoteStatus = "withdrawal_failed"
)

// privacyNoteTransitions lists the allowed moves. withdrawal_failed may retry.
var privacyNoteTransitions = map[PrivacyNoteStatus][]PrivacyNoteStatus{
	PrivacyNoteStatusPending:           {PrivacyNoteStatusActive},
	PrivacyNoteStatusActive:            {PrivacyNoteStatusWithdrawalPending},
	PrivacyNoteStatusWithdrawalPending: {PrivacyNoteStatusWithdrawn, PrivacyNoteStatusWithdrawalFailed},
	PrivacyNoteStatusWithdrawalFailed:  {PrivacyNoteStatusWithdrawalPending},
}

// CanTransition reports whether from -> to is allowed.
func (from PrivacyNoteStatus) CanTransition(to PrivacyNoteStatus) bool {
	for _, s := range privacyNoteTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PrivacyNote is the privacy-protocol record attached to a private deposit.
type PrivacyNote struct {
	ID                    string
	DepositSessionID      string
	UserID                string
	Commitment            string
	AmountLamports        uint64
	Status                PrivacyNoteStatus
	WithdrawalAttempts    int
	LastError             string
	WithdrawalTxSignature string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
