package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AlexZinkM/split-custody/internal/model"
	"github.com/AlexZinkM/split-custody/internal/security"

	"github.com/uptrace/bun"
)

// Lamport columns are BIGINT on every engine; amounts above MaxInt64 are rejected by the services.
// Secret columns are plain []byte here and become security.Secret at the model boundary.

type walletRow struct {
	bun.BaseModel `bun:"table:wallet_materials"`

	ID               string          `bun:"id,pk"`
	UserID           string          `bun:"user_id"`
	Context          string          `bun:"wallet_context"`
	PublicKey        string          `bun:"public_key"`
	SchemeVersion    int             `bun:"scheme_version"`
	AuthMethod       string          `bun:"auth_method"`
	ShareACiphertext []byte          `bun:"share_a_ciphertext"`
	ShareANonce      []byte          `bun:"share_a_nonce"`
	ShareASalt       []byte          `bun:"share_a_salt"`
	KDFParams        sql.NullString  `bun:"kdf_params"`
	PRFSalt          []byte          `bun:"prf_salt"`
	PINHash          string          `bun:"pin_hash"`
	ShareB           []byte          `bun:"share_b"`
	APIKeyID         string          `bun:"api_key_id"`
	CreatedAt        time.Time       `bun:"created_at"`
	UpdatedAt        time.Time       `bun:"updated_at"`
}

func encodeKDF(p *model.KDFParams) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode kdf params: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func decodeKDF(s sql.NullString) (*model.KDFParams, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var p model.KDFParams
	if err := json.Unmarshal([]byte(s.String), &p); err != nil {
		return nil, fmt.Errorf("failed to decode kdf params: %w", err)
	}
	return &p, nil
}

func newWalletRow(w *model.WalletMaterial) (*walletRow, error) {
	kdf, err := encodeKDF(w.KDF)
	if err != nil {
		return nil, err
	}
	return &walletRow{
		ID:               w.ID,
		UserID:           w.UserID,
		Context:          w.Context,
		PublicKey:        w.PublicKey,
		SchemeVersion:    w.SchemeVersion,
		AuthMethod:       string(w.AuthMethod),
		ShareACiphertext: w.ShareACiphertext,
		ShareANonce:      w.ShareANonce,
		ShareASalt:       w.ShareASalt,
		KDFParams:        kdf,
		PRFSalt:          w.PRFSalt,
		PINHash:          w.PINHash,
		ShareB:           w.ShareB.Bytes(),
		APIKeyID:         w.APIKeyID,
		CreatedAt:        utc(w.CreatedAt),
		UpdatedAt:        utc(w.UpdatedAt),
	}, nil
}

func (r *walletRow) toModel() (*model.WalletMaterial, error) {
	kdf, err := decodeKDF(r.KDFParams)
	if err != nil {
		return nil, err
	}
	return &model.WalletMaterial{
		ID:               r.ID,
		UserID:           r.UserID,
		Context:          r.Context,
		PublicKey:        r.PublicKey,
		SchemeVersion:    r.SchemeVersion,
		AuthMethod:       model.AuthMethod(r.AuthMethod),
		ShareACiphertext: r.ShareACiphertext,
		ShareANonce:      r.ShareANonce,
		ShareASalt:       r.ShareASalt,
		KDF:              kdf,
		PRFSalt:          r.PRFSalt,
		PINHash:          r.PINHash,
		ShareB:           security.Secret(r.ShareB),
		APIKeyID:         r.APIKeyID,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}, nil
}

type rotationRow struct {
	bun.BaseModel `bun:"table:rotation_history"`

	ID             string    `bun:"id,pk"`
	UserID         string    `bun:"user_id"`
	Context        string    `bun:"wallet_context"`
	PublicKey      string    `bun:"public_key"`
	Event          string    `bun:"event"`
	PreviousMethod string    `bun:"previous_method"`
	NewMethod      string    `bun:"new_method"`
	CreatedAt      time.Time `bun:"created_at"`
}

type depositRow struct {
	bun.BaseModel `bun:"table:deposit_sessions"`

	ID                      string          `bun:"id,pk"`
	UserID                  string          `bun:"user_id"`
	WalletAddress           string          `bun:"wallet_address"`
	WalletKind              string          `bun:"wallet_kind"`
	DepositKind             string          `bun:"deposit_kind"`
	Currency                string          `bun:"currency"`
	InputMint               string          `bun:"input_mint"`
	Status                  string          `bun:"status"`
	DetectedAmount          int64           `bun:"detected_amount"`
	DetectedSignature       string          `bun:"detected_signature"`
	DepositSignature        string          `bun:"deposit_signature"`
	DepositAmountLamports   int64           `bun:"deposit_amount_lamports"`
	WithdrawnAmountLamports int64           `bun:"withdrawn_amount_lamports"`
	CompletedAt             bun.NullTime    `bun:"completed_at"`
	WithdrawalAvailableAt   bun.NullTime    `bun:"withdrawal_available_at"`
	WithdrawnAt             bun.NullTime    `bun:"withdrawn_at"`
	ExpiresAt               time.Time       `bun:"expires_at"`
	StoredShareB            []byte          `bun:"stored_share_b"`
	ProcessingAttempts      int             `bun:"processing_attempts"`
	LastProcessingError     string          `bun:"last_processing_error"`
	BatchID                 string          `bun:"batch_id"`
	BatchedAt               bun.NullTime    `bun:"batched_at"`
	BatchTxSignature        string          `bun:"batch_tx_signature"`
	BatchCollectSignature   string          `bun:"batch_collect_signature"`
	CreatedAt               time.Time       `bun:"created_at"`
	UpdatedAt               time.Time       `bun:"updated_at"`
}

func nullTime(t *time.Time) bun.NullTime {
	if t == nil {
		return bun.NullTime{}
	}
	return bun.NullTime{Time: utc(*t)}
}

func timePtr(t bun.NullTime) *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func newDepositRow(s *model.DepositSession) *depositRow {
	return &depositRow{
		ID:                      s.ID,
		UserID:                  s.UserID,
		WalletAddress:           s.WalletAddress,
		WalletKind:              string(s.WalletKind),
		DepositKind:             string(s.DepositKind),
		Currency:                s.Currency,
		InputMint:               s.InputMint,
		Status:                  string(s.Status),
		DetectedAmount:          int64(s.DetectedAmount),
		DetectedSignature:       s.DetectedSignature,
		DepositSignature:        s.DepositSignature,
		DepositAmountLamports:   int64(s.DepositAmountLamports),
		WithdrawnAmountLamports: int64(s.WithdrawnAmountLamports),
		CompletedAt:             nullTime(s.CompletedAt),
		WithdrawalAvailableAt:   nullTime(s.WithdrawalAvailableAt),
		WithdrawnAt:             nullTime(s.WithdrawnAt),
		ExpiresAt:               utc(s.ExpiresAt),
		StoredShareB:            s.StoredShareB.Bytes(),
		ProcessingAttempts:      s.ProcessingAttempts,
		LastProcessingError:     s.LastProcessingError,
		BatchID:                 s.BatchID,
		BatchedAt:               nullTime(s.BatchedAt),
		BatchTxSignature:        s.BatchTxSignature,
		BatchCollectSignature:   s.BatchCollectSignature,
		CreatedAt:               utc(s.CreatedAt),
		UpdatedAt:               utc(s.UpdatedAt),
	}
}

func (r *depositRow) toModel() *model.DepositSession {
	return &model.DepositSession{
		ID:                      r.ID,
		UserID:                  r.UserID,
		WalletAddress:           r.WalletAddress,
		WalletKind:              model.WalletKind(r.WalletKind),
		DepositKind:             model.DepositKind(r.DepositKind),
		Currency:                r.Currency,
		InputMint:               r.InputMint,
		Status:                  model.DepositStatus(r.Status),
		DetectedAmount:          uint64(r.DetectedAmount),
		DetectedSignature:       r.DetectedSignature,
		DepositSignature:        r.DepositSignature,
		DepositAmountLamports:   uint64(r.DepositAmountLamports),
		WithdrawnAmountLamports: uint64(r.WithdrawnAmountLamports),
		CompletedAt:             timePtr(r.CompletedAt),
		WithdrawalAvailableAt:   timePtr(r.WithdrawalAvailableAt),
		WithdrawnAt:             timePtr(r.WithdrawnAt),
		ExpiresAt:               r.ExpiresAt.UTC(),
		StoredShareB:            security.Secret(r.StoredShareB),
		ProcessingAttempts:      r.ProcessingAttempts,
		LastProcessingError:     r.LastProcessingError,
		BatchID:                 r.BatchID,
		BatchedAt:               timePtr(r.BatchedAt),
		BatchTxSignature:        r.BatchTxSignature,
		BatchCollectSignature:   r.BatchCollectSignature,
		CreatedAt:               r.CreatedAt.UTC(),
		UpdatedAt:               r.UpdatedAt.UTC(),
	}
}

type noteRow struct {
	bun.BaseModel `bun:"table:privacy_notes"`

	ID                    string    `bun:"id,pk"`
	DepositSessionID      string    `bun:"deposit_session_id"`
	UserID                string    `bun:"user_id"`
	Commitment            string    `bun:"commitment"`
	AmountLamports        int64     `bun:"amount_lamports"`
	Status                string    `bun:"status"`
	WithdrawalAttempts    int       `bun:"withdrawal_attempts"`
	LastError             string    `bun:"last_error"`
	WithdrawalTxSignature string    `bun:"withdrawal_tx_signature"`
	CreatedAt             time.Time `bun:"created_at"`
	UpdatedAt             time.Time `bun:"updated_at"`
}

func (r *noteRow) toModel() *model.PrivacyNote {
	return &model.PrivacyNote{
		ID:                    r.ID,
		DepositSessionID:      r.DepositSessionID,
		UserID:                r.UserID,
		Commitment:            r.Commitment,
		AmountLamports:        uint64(r.AmountLamports),
		Status:                model.PrivacyNoteStatus(r.Status),
		WithdrawalAttempts:    r.WithdrawalAttempts,
		LastError:             r.LastError,
		WithdrawalTxSignature: r.WithdrawalTxSignature,
		CreatedAt:             r.CreatedAt.UTC(),
		UpdatedAt:             r.UpdatedAt.UTC(),
	}
}
