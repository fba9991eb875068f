// Package deposit drives a deposit session from creation to completion or batching.
package deposit

import (
	"context"
	"errors"
	"time"

	"github.com/AlexZinkM/split-custody/internal/apperr"
	"github.com/AlexZinkM/split-custody/internal/common"
	"github.com/AlexZinkM/split-custody/internal/crypto"
	"github.com/AlexZinkM/split-custody/internal/custody"
	"github.com/AlexZinkM/split-custody/internal/db"
	"github.com/AlexZinkM/split-custody/internal/model"
	"github.com/AlexZinkM/split-custody/internal/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sidecar is the part of the sidecar contract used by deposits.
type Sidecar interface {
	Deposit(ctx context.Context, key []byte, amountLamports uint64) (*model.SidecarDepositResponse, error)
	SwapAndDeposit(ctx context.Context, key []byte, inputMint string, amount uint64) (*model.SidecarSwapAndDepositResponse, error)
	VerifySOLTransfer(ctx context.Context, req model.SidecarVerifyTransferRequest) (*model.SidecarVerifyTransferResponse, error)
}

// KeyProvider reconstructs a wallet key for the length of fn.
type KeyProvider interface {
	WithKey(ctx context.Context, userID, walletContext string, credential []byte, fn custody.KeyFunc) error
}

// Config holds the deposit lifecycle knobs.
type Config struct {
	PrivacyPeriod          time.Duration
	PendingTTL             time.Duration
	MicroThresholdLamports uint64
	MaxAttempts            int
}

// Service owns deposit sessions up to the point they become withdrawable.
type Service struct {
	deposits db.DepositStore
	notes    db.PrivacyNoteStore
	wallets  db.WalletStore
	keys     KeyProvider
	sidecar  Sidecar
	sealer   *crypto.Sealer
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a new deposit service.
func NewService(store db.Store, keys KeyProvider, sidecar Sidecar, sealer *crypto.Sealer, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		deposits: store,
		notes:    store,
		wallets:  store,
		keys:     keys,
		sidecar:  sidecar,
		sealer:   sealer,
		cfg:      cfg,
		logger:   logger.Named("deposit"),
		now:      time.Now,
	}
}

func validateCreate(req *model.CreateDepositRequest) error {
	if err := validation.PublicKey(req.WalletAddress); err != nil {
		return err
	}
	switch req.WalletKind {
	case model.WalletKindEmbedded, model.WalletKindExternal:
	default:
		return apperr.Validation("unknown wallet kind %q", req.WalletKind)
	}
	switch req.DepositKind {
	case model.DepositKindPrivate, model.DepositKindPublic, model.DepositKindMicro:
	default:
		return apperr.Validation("unknown deposit kind %q", req.DepositKind)
	}
	if req.Currency != model.CurrencySOL {
		if req.DepositKind == model.DepositKindMicro {
			return apperr.Validation("micro deposits must be in %s", model.CurrencySOL)
		}
		if req.InputMint == "" {
			return apperr.Validation("inputMint is required for %s deposits", req.Currency)
		}
		if err := validation.PublicKey(req.InputMint); err != nil {
			return apperr.Validation("invalid inputMint")
		}
	}
	return nil
}

// Create opens a pending session for a wallet the user has enrolled.
func (s *Service) Create(ctx context.Context, userID string, req *model.CreateDepositRequest) (*model.DepositSession, error) {
	if req.Currency == "" {
		req.Currency = model.CurrencySOL
	}
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	w, err := s.wallets.GetWalletByPublicKey(ctx, req.WalletAddress)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, apperr.Internal("failed to look up wallet", err)
	}
	if err != nil || w.UserID != userID {
		return nil, apperr.Validation("wallet address is not enrolled for this user")
	}
	w.ShareB.Wipe()

	now := s.now().UTC()
	d := &model.DepositSession{
		ID:            uuid.NewString(),
		UserID:        userID,
		WalletAddress: req.WalletAddress,
		WalletKind:    req.WalletKind,
		DepositKind:   req.DepositKind,
		Currency:      req.Currency,
		InputMint:     req.InputMint,
		Status:        model.DepositStatusPending,
		ExpiresAt:     now.Add(s.cfg.PendingTTL),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.deposits.CreateDeposit(ctx, d); err != nil {
		return nil, db.AppError(err, "deposit")
	}

	s.logger.Info("deposit session created",
		zap.String("deposit_id", d.ID),
		zap.String("user_id", userID),
		zap.String("kind", string(d.DepositKind)),
		zap.String("currency", d.Currency),
	)
	return d, nil
}

// Get returns a session owned by userID. Sessions of other users are reported as not found.
func (s *Service) Get(ctx context.Context, userID, id string) (*model.DepositSession, error) {
	d, err := s.deposits.GetDeposit(ctx, id)
	if err != nil {
		return nil, db.AppError(err, "deposit")
	}
	if d.UserID != userID {
		return nil, apperr.NotFound("deposit not found")
	}
	d.StoredShareB.Wipe()
	d.StoredShareB = nil
	return d, nil
}

// Detect records the on-chain transfer that funded the session. External wallets
// and any request with a source address are verified with the sidecar first.
func (s *Service) Detect(ctx context.Context, userID, id string, req *model.DetectDepositRequest) (*model.DepositSession, error) {
	if err := validation.Signature(req.Signature); err != nil {
		return nil, err
	}
	if req.AmountLamports == 0 {
		return nil, apperr.Validation("amountLamports must be positive")
	}

	d, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if d.Status != model.DepositStatusPending {
		return nil, apperr.Conflict("deposit is %s, expected pending", d.Status)
	}

	amount := req.AmountLamports
	if d.WalletKind == model.WalletKindExternal && req.SourceAddress == "" {
		return nil, apperr.Validation("sourceAddress is required for external wallets")
	}
	if req.SourceAddress != "" && d.Currency == model.CurrencySOL {
		if err := validation.PublicKey(req.SourceAddress); err != nil {
			return nil, err
		}
		minLamports := req.AmountLamports
		resp, err := s.sidecar.VerifySOLTransfer(ctx, model.SidecarVerifyTransferRequest{
			Signature:           req.Signature,
			ExpectedSource:      req.SourceAddress,
			ExpectedDestination: d.WalletAddress,
			MinLamports:         &minLamports,
		})
		if err != nil {
			return nil, err
		}
		if !resp.OK {
			s.logger.Warn("transfer verification failed",
				zap.String("deposit_id", id),
				zap.String("signature", req.Signature),
				zap.String("error", resp.Error),
			)
			return nil, apperr.Validation("transfer %s could not be verified", req.Signature)
		}
		if resp.ObservedLamports > 0 {
			amount = resp.ObservedLamports
		}
	}

	if err := s.deposits.MarkDetected(ctx, id, amount, req.Signature, s.now()); err != nil {
		return nil, db.AppError(err, "deposit")
	}
	s.logger.Info("deposit detected",
		zap.String("deposit_id", id),
		zap.String("signature", req.Signature),
		zap.String("amount_sol", common.LamportsToSOL(amount)),
	)
	return s.Get(ctx, userID, id)
}

// isMicro reports whether d is parked for batching instead of deposited on its own.
func (s *Service) isMicro(d *model.DepositSession) bool {
	if d.DepositKind == model.DepositKindMicro {
		return true
	}
	return d.Currency == model.CurrencySOL && d.DetectedAmount < s.cfg.MicroThresholdLamports
}

type completion struct {
	amount    uint64
	signature string
	sealed    []byte
}

// Complete reconstructs the wallet key with credential, runs the custody-protocol
// deposit and stores the sealed key on the session. A wrong credential leaves the
// session untouched; a sidecar failure reverts it to detected, or fails it once
// the attempt budget is spent.
func (s *Service) Complete(ctx context.Context, userID, id, walletContext string, credential []byte) (*model.DepositSession, error) {
	d, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if d.Status != model.DepositStatusDetected {
		return nil, apperr.Conflict("deposit is %s, expected detected", d.Status)
	}
	micro := s.isMicro(d)

	var claimed bool
	var result completion
	err = s.keys.WithKey(ctx, userID, walletContext, credential, func(w *model.WalletMaterial, key []byte) error {
		if w.PublicKey != d.WalletAddress {
			return apperr.Validation("wallet %q does not own the deposit address", w.Context)
		}
		if err := s.deposits.MarkProcessing(ctx, id, s.now()); err != nil {
			return db.AppError(err, "deposit")
		}
		claimed = true

		result.amount = d.DetectedAmount
		result.signature = d.DetectedSignature
		switch {
		case micro:
		case d.Currency == model.CurrencySOL:
			resp, err := s.sidecar.Deposit(ctx, key, d.DetectedAmount)
			if err != nil {
				return err
			}
			result.signature = resp.TxSignature
		default:
			resp, err := s.sidecar.SwapAndDeposit(ctx, key, d.InputMint, d.DetectedAmount)
			if err != nil {
				return err
			}
			result.amount = resp.SOLAmountLamports
			result.signature = resp.DepositTxSignature
		}

		sealed, err := s.sealer.Seal(id, key)
		if err != nil {
			return apperr.Internal("failed to seal key", err)
		}
		result.sealed = sealed
		return nil
	})
	defer clear(result.sealed)

	// The session may be processing now. Its bookkeeping must land even if
	// the caller went away during the sidecar call.
	wctx, cancel := db.Detached(ctx)
	defer cancel()
	if err != nil {
		if claimed {
			s.recordFailure(wctx, d, err)
		}
		return nil, err
	}

	completedAt := s.now().UTC()
	c := db.Completion{
		AmountLamports:   result.amount,
		DepositSignature: result.signature,
		SealedKey:        result.sealed,
		CompletedAt:      completedAt,
	}
	if micro {
		err = s.deposits.MarkPendingBatch(wctx, id, c)
	} else {
		availableAt := completedAt
		if d.DepositKind == model.DepositKindPrivate {
			availableAt = completedAt.Add(s.cfg.PrivacyPeriod)
		}
		c.AvailableAt = &availableAt
		err = s.deposits.MarkCompleted(wctx, id, c)
	}
	if err != nil {
		// funds already moved; leave the session in processing for an operator
		s.logger.Error("failed to store completed deposit",
			zap.String("deposit_id", id),
			zap.String("signature", result.signature),
			zap.Error(err),
		)
		return nil, apperr.Internal("failed to store deposit completion", err)
	}

	if d.DepositKind == model.DepositKindPrivate && !micro {
		s.registerNote(wctx, d, result)
	}

	s.logger.Info("deposit completed",
		zap.String("deposit_id", id),
		zap.Bool("micro", micro),
		zap.String("signature", result.signature),
		zap.String("amount_sol", common.LamportsToSOL(result.amount)),
	)
	return s.Get(wctx, userID, id)
}

// recordFailure counts a failed completion attempt against the session.
func (s *Service) recordFailure(ctx context.Context, d *model.DepositSession, cause error) {
	reason := apperr.PublicMessage(cause)
	now := s.now()
	var err error
	if s.cfg.MaxAttempts > 0 && d.ProcessingAttempts+1 >= s.cfg.MaxAttempts {
		err = s.deposits.MarkFailed(ctx, d.ID, reason, now)
		s.logger.Error("deposit failed permanently", zap.String("deposit_id", d.ID), zap.Error(cause))
	} else {
		err = s.deposits.RevertProcessing(ctx, d.ID, reason, now)
		s.logger.Warn("deposit attempt failed", zap.String("deposit_id", d.ID), zap.Error(cause))
	}
	if err != nil {
		s.logger.Error("failed to record deposit failure", zap.String("deposit_id", d.ID), zap.Error(err))
	}
}

func (s *Service) registerNote(ctx context.Context, d *model.DepositSession, result completion) {
	now := s.now().UTC()
	note := &model.PrivacyNote{
		ID:               uuid.NewString(),
		DepositSessionID: d.ID,
		UserID:           d.UserID,
		Commitment:       result.signature,
		AmountLamports:   result.amount,
		Status:           model.PrivacyNoteStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.notes.CreateNote(ctx, note); err != nil {
		s.logger.Error("failed to create privacy note", zap.String("deposit_id", d.ID), zap.Error(err))
		return
	}
	if err := s.notes.TransitionNote(ctx, note.ID, model.PrivacyNoteStatusPending, model.PrivacyNoteStatusActive, db.NoteUpdate{At: now}); err != nil {
		s.logger.Error("failed to activate privacy note", zap.String("deposit_id", d.ID), zap.Error(err))
	}
}

// Delete removes a pending session that has not seen any funds.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.deposits.DeletePending(ctx, id); err != nil {
		if errors.Is(err, db.ErrStateConflict) {
			return apperr.Conflict("only pending deposits with no detected amount can be deleted")
		}
		return db.AppError(err, "deposit")
	}
	s.logger.Info("deposit session deleted", zap.String("deposit_id", id), zap.String("user_id", userID))
	return nil
}

// ExpireStale moves pending sessions past their TTL to expired.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	n, err := s.deposits.ExpirePending(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired pending deposits", zap.Int("count", n))
	}
	return n, nil
}
