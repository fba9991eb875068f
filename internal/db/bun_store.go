package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AlexZinkM/split-custody/internal/model"

	"github.com/uptrace/bun"
)

// BunStore implements Store on SQLite, Postgres or MySQL through bun.
type BunStore struct {
	db     *bun.DB
	dbType string
}

var _ Store = (*BunStore)(nil)

// Close closes the underlying pool.
func (s *BunStore) Close() error {
	return s.db.Close()
}

// checkAffected turns a zero-row update into ErrNotFound or ErrStateConflict.
func checkAffected(ctx context.Context, idb bun.IDB, table string, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	exists, err := idb.NewSelect().Table(table).Where("id = ?", id).Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check %s %s: %w", table, id, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStateConflict
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// CreateWallet inserts w. Unique (user, context) and public key violations map to ErrDuplicate.
func (s *BunStore) CreateWallet(ctx context.Context, w *model.WalletMaterial) error {
	row, err := newWalletRow(w)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	return nil
}

func (s *BunStore) getWallet(ctx context.Context, where string, args ...any) (*model.WalletMaterial, error) {
	row := new(walletRow)
	if err := s.db.NewSelect().Model(row).Where(where, args...).Limit(1).Scan(ctx); err != nil {
		return nil, notFound(err)
	}
	return row.toModel()
}

// GetWallet loads the wallet for (user, context).
func (s *BunStore) GetWallet(ctx context.Context, userID, walletContext string) (*model.WalletMaterial, error) {
	return s.getWallet(ctx, "user_id = ? AND wallet_context = ?", userID, walletContext)
}

// GetWalletByPublicKey loads the wallet enrolled for publicKey.
func (s *BunStore) GetWalletByPublicKey(ctx context.Context, publicKey string) (*model.WalletMaterial, error) {
	return s.getWallet(ctx, "public_key = ?", publicKey)
}

// ReplaceShareA updates the Share A columns in one statement.
func (s *BunStore) ReplaceShareA(ctx context.Context, userID, walletContext string, u model.ShareAUpdate, at time.Time) error {
	kdf, err := encodeKDF(u.KDF)
	if err != nil {
		return err
	}
	res, err := s.db.NewUpdate().
		Table("wallet_materials").
		Set("auth_method = ?", string(u.AuthMethod)).
		Set("share_a_ciphertext = ?", u.ShareACiphertext).
		Set("share_a_nonce = ?", u.ShareANonce).
		Set("share_a_salt = ?", u.ShareASalt).
		Set("kdf_params = ?", kdf).
		Set("prf_salt = ?", u.PRFSalt).
		Set("pin_hash = ?", u.PINHash).
		Set("api_key_id = ?", u.APIKeyID).
		Set("updated_at = ?", utc(at)).
		Where("user_id = ? AND wallet_context = ?", userID, walletContext).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to replace share a: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWallet removes the wallet row.
func (s *BunStore) DeleteWallet(ctx context.Context, userID, walletContext string) error {
	res, err := s.db.NewDelete().
		Model((*walletRow)(nil)).
		Where("user_id = ? AND wallet_context = ?", userID, walletContext).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete wallet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordRotation inserts a provenance entry.
func (s *BunStore) RecordRotation(ctx context.Context, e *model.RotationHistoryEntry) error {
	row := &rotationRow{
		ID:             e.ID,
		UserID:         e.UserID,
		Context:        e.Context,
		PublicKey:      e.PublicKey,
		Event:          string(e.Event),
		PreviousMethod: string(e.PreviousMethod),
		NewMethod:      string(e.NewMethod),
		CreatedAt:      utc(e.CreatedAt),
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	return nil
}

// ListRotations returns the user's entries oldest first.
func (s *BunStore) ListRotations(ctx context.Context, userID string) ([]model.RotationHistoryEntry, error) {
	var rows []rotationRow
	if err := s.db.NewSelect().Model(&rows).Where("user_id = ?", userID).Order("created_at ASC").Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to list rotations: %w", err)
	}
	out := make([]model.RotationHistoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.RotationHistoryEntry{
			ID:             r.ID,
			UserID:         r.UserID,
			Context:        r.Context,
			PublicKey:      r.PublicKey,
			Event:          model.RotationEvent(r.Event),
			PreviousMethod: model.AuthMethod(r.PreviousMethod),
			NewMethod:      model.AuthMethod(r.NewMethod),
			CreatedAt:      r.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// CreateNote inserts a privacy note. One note per deposit.
func (s *BunStore) CreateNote(ctx context.Context, n *model.PrivacyNote) error {
	row := &noteRow{
		ID:                    n.ID,
		DepositSessionID:      n.DepositSessionID,
		UserID:                n.UserID,
		Commitment:            n.Commitment,
		AmountLamports:        int64(n.AmountLamports),
		Status:                string(n.Status),
		WithdrawalAttempts:    n.WithdrawalAttempts,
		LastError:             n.LastError,
		WithdrawalTxSignature: n.WithdrawalTxSignature,
		CreatedAt:             utc(n.CreatedAt),
		UpdatedAt:             utc(n.UpdatedAt),
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	return nil
}

// GetNoteByDeposit loads the note attached to a deposit session.
func (s *BunStore) GetNoteByDeposit(ctx context.Context, depositID string) (*model.PrivacyNote, error) {
	row := new(noteRow)
	if err := s.db.NewSelect().Model(row).Where("deposit_session_id = ?", depositID).Limit(1).Scan(ctx); err != nil {
		return nil, notFound(err)
	}
	return row.toModel(), nil
}

// TransitionNote is a compare-and-set on the note status.
func (s *BunStore) TransitionNote(ctx context.Context, id string, from, to model.PrivacyNoteStatus, u NoteUpdate) error {
	q := s.db.NewUpdate().
		Table("privacy_notes").
		Set("status = ?", string(to)).
		Set("updated_at = ?", utc(u.At)).
		Where("id = ?", id).
		Where("status = ?", string(from))
	if u.IncrementAttempts {
		q = q.Set("withdrawal_attempts = withdrawal_attempts + 1")
	}
	if u.LastError != "" {
		q = q.Set("last_error = ?", u.LastError)
	}
	if u.TxSignature != "" {
		q = q.Set("withdrawal_tx_signature = ?", u.TxSignature)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to transition note %s: %w", id, err)
	}
	return checkAffected(ctx, s.db, "privacy_notes", res, id)
}
