// Package custody holds split-key wallet material and reconstructs signing keys on demand.
package custody

import (
	"context"
	"errors"
	"time"

	"github.com/AlexZinkM/split-custody/internal/apperr"
	"github.com/AlexZinkM/split-custody/internal/crypto"
	"github.com/AlexZinkM/split-custody/internal/db"
	"github.com/AlexZinkM/split-custody/internal/model"
	"github.com/AlexZinkM/split-custody/internal/security"
	"github.com/AlexZinkM/split-custody/internal/validation"
	"github.com/AlexZinkM/split-custody/solana"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Signer signs a wire transaction with a reconstructed key.
type Signer interface {
	SignTransaction(key []byte, raw []byte) (*solana.SignedTransaction, error)
}

// KeyFunc receives the reconstructed 64-byte key. It must not retain key.
type KeyFunc func(w *model.WalletMaterial, key []byte) error

// Service enrolls, rotates, signs with and deletes split-key wallets.
type Service struct {
	wallets db.WalletStore
	history db.RotationHistory
	signer  Signer
	logger  *zap.Logger
	now     func() time.Time
	locks   *keyedMutex
}

// NewService creates a new custody service.
func NewService(wallets db.WalletStore, history db.RotationHistory, signer Signer, logger *zap.Logger) *Service {
	return &Service{
		wallets: wallets,
		history: history,
		signer:  signer,
		logger:  logger.Named("custody"),
		now:     time.Now,
		locks:   newKeyedMutex(),
	}
}

func walletContext(c string) string {
	if c == "" {
		return model.ContextPrimary
	}
	return c
}

func pinHash(method model.AuthMethod, pin string) (string, error) {
	if method != model.AuthMethodPIN {
		return "", nil
	}
	h, err := crypto.HashPIN(pin)
	if err != nil {
		return "", apperr.Internal("failed to hash pin", err)
	}
	return h, nil
}

// Enroll stores a new wallet for (userID, req.Context).
func (s *Service) Enroll(ctx context.Context, userID string, req *model.EnrollRequest) (*model.WalletMaterial, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	if err := validation.Enrollment(req); err != nil {
		return nil, err
	}

	hash, err := pinHash(req.AuthMethod, req.PIN)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	w := &model.WalletMaterial{
		ID:               uuid.NewString(),
		UserID:           userID,
		Context:          walletContext(req.Context),
		PublicKey:        req.PublicKey,
		SchemeVersion:    model.SchemeVersion,
		AuthMethod:       req.AuthMethod,
		ShareACiphertext: req.ShareACiphertext,
		ShareANonce:      req.ShareANonce,
		ShareASalt:       req.ShareASalt,
		KDF:              req.KDF,
		PRFSalt:          req.PRFSalt,
		PINHash:          hash,
		ShareB:           security.FromBytes(req.ShareB),
		APIKeyID:         req.APIKeyID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	defer w.ShareB.Wipe()

	if err := s.wallets.CreateWallet(ctx, w); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, apperr.Conflict("wallet already enrolled for context %q or public key in use", w.Context)
		}
		return nil, apperr.Internal("failed to store wallet", err)
	}

	s.logger.Info("wallet enrolled",
		zap.String("user_id", userID),
		zap.String("context", w.Context),
		zap.String("auth_method", string(w.AuthMethod)),
		zap.String("public_key", w.PublicKey),
	)
	out := *w
	out.ShareB = nil
	return &out, nil
}

// RotateCredential replaces the Share A path of an existing wallet. Share B and
// the public key are left untouched.
func (s *Service) RotateCredential(ctx context.Context, userID string, req *model.RotateRequest) error {
	if err := validation.Rotation(req); err != nil {
		return err
	}
	wc := walletContext(req.Context)

	unlock := s.locks.Lock(userID + "/" + wc)
	defer unlock()

	w, err := s.wallets.GetWallet(ctx, userID, wc)
	if err != nil {
		return db.AppError(err, "wallet")
	}
	defer w.ShareB.Wipe()

	hash, err := pinHash(req.AuthMethod, req.PIN)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	update := model.ShareAUpdate{
		AuthMethod:       req.AuthMethod,
		ShareACiphertext: req.ShareACiphertext,
		ShareANonce:      req.ShareANonce,
		ShareASalt:       req.ShareASalt,
		KDF:              req.KDF,
		PRFSalt:          req.PRFSalt,
		PINHash:          hash,
		APIKeyID:         req.APIKeyID,
	}
	if err := s.wallets.ReplaceShareA(ctx, userID, wc, update, now); err != nil {
		return db.AppError(err, "wallet")
	}

	entry := &model.RotationHistoryEntry{
		ID:             uuid.NewString(),
		UserID:         userID,
		Context:        wc,
		PublicKey:      w.PublicKey,
		Event:          model.RotationEventRotated,
		PreviousMethod: w.AuthMethod,
		NewMethod:      req.AuthMethod,
		CreatedAt:      now,
	}
	if err := s.history.RecordRotation(ctx, entry); err != nil {
		// rotation is already committed
		s.logger.Error("failed to record rotation", zap.String("user_id", userID), zap.String("context", wc), zap.Error(err))
	}

	s.logger.Info("credential rotated",
		zap.String("user_id", userID),
		zap.String("context", wc),
		zap.String("from", string(w.AuthMethod)),
		zap.String("to", string(req.AuthMethod)),
	)
	return nil
}

// WithKey reconstructs the wallet key, checks it against the stored public key
// and runs fn with it. Every intermediate buffer is cleared before WithKey
// returns, including when fn fails or panics.
func (s *Service) WithKey(ctx context.Context, userID, wc string, credential []byte, fn KeyFunc) error {
	if len(credential) == 0 {
		return apperr.Validation("credential is required")
	}
	wc = walletContext(wc)

	unlock := s.locks.Lock(userID + "/" + wc)
	defer unlock()

	w, err := s.wallets.GetWallet(ctx, userID, wc)
	if err != nil {
		return db.AppError(err, "wallet")
	}
	defer w.ShareB.Wipe()

	if w.AuthMethod == model.AuthMethodPIN {
		ok, err := crypto.VerifyPIN(string(credential), w.PINHash)
		if err != nil {
			return apperr.Internal("failed to verify pin", err)
		}
		if !ok {
			s.logger.Warn("pin mismatch", zap.String("user_id", userID), zap.String("context", wc))
			return apperr.InvalidCredentials("invalid credentials")
		}
	}

	shareA, err := crypto.DecryptShareA(w, credential)
	if err != nil {
		if errors.Is(err, crypto.ErrDecrypt) {
			s.logger.Warn("share A decryption failed", zap.String("user_id", userID), zap.String("context", wc))
			return apperr.InvalidCredentials("invalid credentials")
		}
		return apperr.Internal("failed to decrypt share", err)
	}
	defer clear(shareA)

	buf, err := crypto.ReconstructKey(shareA, w.ShareB)
	if err != nil {
		s.logger.Warn("key reconstruction failed", zap.String("user_id", userID), zap.String("context", wc), zap.Error(err))
		return apperr.InvalidCredentials("invalid credentials")
	}
	defer buf.Release()

	return buf.Use(func(key []byte) error {
		if err := solana.VerifyKeyMatches(key, w.PublicKey); err != nil {
			s.logger.Warn("reconstructed key does not match wallet", zap.String("user_id", userID), zap.String("context", wc))
			return apperr.InvalidCredentials("invalid credentials")
		}
		return fn(w, key)
	})
}

// Sign signs a wire transaction with the user's wallet.
func (s *Service) Sign(ctx context.Context, userID, wc string, credential, rawTx []byte) (*solana.SignedTransaction, error) {
	if len(rawTx) == 0 {
		return nil, apperr.Validation("transaction is required")
	}
	var signed *solana.SignedTransaction
	err := s.WithKey(ctx, userID, wc, credential, func(_ *model.WalletMaterial, key []byte) error {
		out, err := s.signer.SignTransaction(key, rawTx)
		if err != nil {
			if errors.Is(err, solana.ErrNotSigner) {
				return apperr.Validation("wallet is not a required signer of the transaction")
			}
			return apperr.Validation("invalid transaction: %v", err)
		}
		signed = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("transaction signed", zap.String("user_id", userID), zap.String("context", walletContext(wc)), zap.String("signature", signed.Signature))
	return signed, nil
}

// VerifyWallet reconstructs the key and checks it against the stored public key without using it.
func (s *Service) VerifyWallet(ctx context.Context, userID, wc string, credential []byte) (string, error) {
	var publicKey string
	err := s.WithKey(ctx, userID, wc, credential, func(w *model.WalletMaterial, _ []byte) error {
		publicKey = w.PublicKey
		return nil
	})
	return publicKey, err
}

// DeleteWallet records provenance and then removes the wallet.
func (s *Service) DeleteWallet(ctx context.Context, userID, wc string) error {
	wc = walletContext(wc)

	unlock := s.locks.Lock(userID + "/" + wc)
	defer unlock()

	w, err := s.wallets.GetWallet(ctx, userID, wc)
	if err != nil {
		return db.AppError(err, "wallet")
	}
	w.ShareB.Wipe()

	entry := &model.RotationHistoryEntry{
		ID:             uuid.NewString(),
		UserID:         userID,
		Context:        wc,
		PublicKey:      w.PublicKey,
		Event:          model.RotationEventDeleted,
		PreviousMethod: w.AuthMethod,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.history.RecordRotation(ctx, entry); err != nil {
		return apperr.Internal("failed to record wallet deletion", err)
	}
	if err := s.wallets.DeleteWallet(ctx, userID, wc); err != nil {
		return db.AppError(err, "wallet")
	}

	s.logger.Info("wallet deleted", zap.String("user_id", userID), zap.String("context", wc), zap.String("public_key", w.PublicKey))
	return nil
}

// History lists provenance entries for userID.
func (s *Service) History(ctx context.Context, userID string) ([]model.RotationHistoryEntry, error) {
	entries, err := s.history.ListRotations(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("failed to list rotation history", err)
	}
	return entries, nil
}
