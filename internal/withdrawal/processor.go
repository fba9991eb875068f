// Package withdrawal claims deposits whose privacy period has passed and withdraws them.
package withdrawal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AlexZinkM/split-custody/internal/apperr"
	"github.com/AlexZinkM/split-custody/internal/client"
	"github.com/AlexZinkM/split-custody/internal/common"
	"github.com/AlexZinkM/split-custody/internal/crypto"
	"github.com/AlexZinkM/split-custody/internal/db"
	"github.com/AlexZinkM/split-custody/internal/model"
	"github.com/AlexZinkM/split-custody/internal/security"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sidecar is the part of the sidecar contract used by withdrawals.
type Sidecar interface {
	Withdraw(ctx context.Context, key []byte, amountLamports uint64, targetCurrency string) (*model.SidecarWithdrawResponse, error)
}

// Config controls one processing cycle.
type Config struct {
	// ClaimLimit is the most sessions claimed per cycle.
	ClaimLimit int
	// Concurrency bounds the sessions processed at once.
	Concurrency int
	// MaxPerCycleLamports caps each withdrawal; 0 withdraws everything remaining.
	MaxPerCycleLamports uint64
	MaxAttempts         int
	TargetCurrency      string
}

// Result summarizes a cycle.
type Result struct {
	Claimed   int
	Withdrawn int
	Partial   int
	Reverted  int
	Failed    int
}

// Processor runs withdrawal cycles.
type Processor struct {
	store   db.Store
	sidecar Sidecar
	sealer  *crypto.Sealer
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

// NewProcessor creates a new withdrawal processor.
func NewProcessor(store db.Store, sidecar Sidecar, sealer *crypto.Sealer, cfg Config, logger *zap.Logger) *Processor {
	if cfg.ClaimLimit <= 0 {
		cfg.ClaimLimit = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Processor{
		store:   store,
		sidecar: sidecar,
		sealer:  sealer,
		cfg:     cfg,
		logger:  logger.Named("withdrawal"),
		now:     time.Now,
	}
}

// RunOnce claims eligible sessions and processes them. Per-session failures are
// recorded on the session and do not fail the cycle.
func (p *Processor) RunOnce(ctx context.Context) (Result, error) {
	claimed, err := p.store.ClaimWithdrawable(ctx, p.now(), p.cfg.ClaimLimit)
	if err != nil {
		return Result{}, err
	}
	res := Result{Claimed: len(claimed)}
	if len(claimed) == 0 {
		return res, nil
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for _, d := range claimed {
		g.Go(func() error {
			outcome := p.process(ctx, d)
			mu.Lock()
			switch outcome {
			case outcomeWithdrawn:
				res.Withdrawn++
			case outcomePartial:
				res.Partial++
			case outcomeReverted:
				res.Reverted++
			case outcomeFailed:
				res.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("withdrawal cycle finished",
		zap.Int("claimed", res.Claimed),
		zap.Int("withdrawn", res.Withdrawn),
		zap.Int("partial", res.Partial),
		zap.Int("reverted", res.Reverted),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

type outcome int

const (
	outcomeStuck outcome = iota
	outcomeWithdrawn
	outcomePartial
	outcomeReverted
	outcomeFailed
)

func (p *Processor) amountFor(d *model.DepositSession) uint64 {
	amount := d.RemainingLamports()
	if p.cfg.MaxPerCycleLamports > 0 && amount > p.cfg.MaxPerCycleLamports {
		amount = p.cfg.MaxPerCycleLamports
	}
	return amount
}

func (p *Processor) process(ctx context.Context, d *model.DepositSession) outcome {
	log := p.logger.With(zap.String("deposit_id", d.ID))

	raw, err := p.sealer.Open(d.ID, d.StoredShareB)
	d.StoredShareB.Wipe()
	if err != nil {
		// a key that cannot be opened will never open
		log.Error("failed to open sealed key", zap.Error(err))
		wctx, cancel := db.Detached(ctx)
		defer cancel()
		p.markFailed(wctx, d, "sealed key cannot be opened")
		return outcomeFailed
	}
	key := security.NewKeyBuffer(raw)
	defer key.Release()

	private := d.DepositKind == model.DepositKindPrivate
	if private {
		p.startNote(ctx, d.ID)
	}

	amount := p.amountFor(d)
	var resp *model.SidecarWithdrawResponse
	err = key.Use(func(k []byte) error {
		var err error
		resp, err = p.sidecar.Withdraw(ctx, k, amount, p.cfg.TargetCurrency)
		return err
	})

	// Bookkeeping from here on must land even if ctx ended during the call.
	wctx, cancel := db.Detached(ctx)
	defer cancel()
	if err != nil {
		if private {
			p.failNote(wctx, d.ID, apperr.PublicMessage(err))
		}
		return p.recordFailure(wctx, d, err)
	}

	withdrawn := amount
	if resp.AmountLamports > 0 && resp.AmountLamports < amount {
		withdrawn = resp.AmountLamports
	}
	if resp.SwapFailed {
		log.Warn("withdrawal swap failed, funds delivered in SOL", zap.String("swap_error", resp.SwapError))
	}

	updated, err := p.store.RecordWithdrawal(wctx, d.ID, withdrawn, p.now())
	if err != nil {
		// funds already moved; leave the session in processing for an operator
		log.Error("failed to record withdrawal",
			zap.String("signature", resp.TxSignature),
			zap.Uint64("amount_lamports", withdrawn),
			zap.Error(err),
		)
		return outcomeStuck
	}

	log.Info("withdrawal recorded",
		zap.String("signature", resp.TxSignature),
		zap.String("amount_sol", common.LamportsToSOL(withdrawn)),
		zap.String("remaining_sol", common.LamportsToSOL(updated.RemainingLamports())),
		zap.String("status", string(updated.Status)),
	)
	if updated.Status != model.DepositStatusWithdrawn {
		return outcomePartial
	}
	if private {
		p.finishNote(wctx, d.ID, resp.TxSignature)
	}
	return outcomeWithdrawn
}

// recordFailure reverts the session out of processing, or fails it when the
// sidecar rejected the withdrawal or the attempt budget is spent.
func (p *Processor) recordFailure(ctx context.Context, d *model.DepositSession, cause error) outcome {
	rejected := errors.Is(cause, client.ErrRejected)
	if rejected || (p.cfg.MaxAttempts > 0 && d.ProcessingAttempts+1 >= p.cfg.MaxAttempts) {
		p.logger.Error("withdrawal failed permanently",
			zap.Bool("rejected", rejected),
			zap.String("deposit_id", d.ID),
			zap.Int("attempts", d.ProcessingAttempts+1),
			zap.Error(cause),
		)
		p.markFailed(ctx, d, apperr.PublicMessage(cause))
		return outcomeFailed
	}

	p.logger.Warn("withdrawal attempt failed",
		zap.String("deposit_id", d.ID),
		zap.Int("attempts", d.ProcessingAttempts+1),
		zap.Error(cause),
	)
	if err := p.store.RevertProcessing(ctx, d.ID, apperr.PublicMessage(cause), p.now()); err != nil {
		p.logger.Error("failed to revert deposit", zap.String("deposit_id", d.ID), zap.Error(err))
		return outcomeStuck
	}
	return outcomeReverted
}

func (p *Processor) markFailed(ctx context.Context, d *model.DepositSession, reason string) {
	if err := p.store.MarkFailed(ctx, d.ID, reason, p.now()); err != nil {
		p.logger.Error("failed to mark deposit failed", zap.String("deposit_id", d.ID), zap.Error(err))
	}
}

// startNote moves the privacy note into withdrawal_pending and counts the attempt.
func (p *Processor) startNote(ctx context.Context, depositID string) {
	n, err := p.store.GetNoteByDeposit(ctx, depositID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			p.logger.Error("failed to load privacy note", zap.String("deposit_id", depositID), zap.Error(err))
		}
		return
	}

	to := model.PrivacyNoteStatusWithdrawalPending
	switch {
	case n.Status == to:
	case n.Status == model.PrivacyNoteStatusWithdrawalFailed && p.cfg.MaxAttempts > 0 && n.WithdrawalAttempts >= p.cfg.MaxAttempts:
		p.logger.Warn("privacy note out of retries", zap.String("deposit_id", depositID), zap.Int("attempts", n.WithdrawalAttempts))
		return
	case !n.Status.CanTransition(to):
		return
	}
	p.transitionNote(ctx, n, to, db.NoteUpdate{IncrementAttempts: true})
}

func (p *Processor) failNote(ctx context.Context, depositID, reason string) {
	n, err := p.store.GetNoteByDeposit(ctx, depositID)
	if err != nil || !n.Status.CanTransition(model.PrivacyNoteStatusWithdrawalFailed) {
		return
	}
	p.transitionNote(ctx, n, model.PrivacyNoteStatusWithdrawalFailed, db.NoteUpdate{LastError: reason})
}

func (p *Processor) finishNote(ctx context.Context, depositID, signature string) {
	n, err := p.store.GetNoteByDeposit(ctx, depositID)
	if err != nil || !n.Status.CanTransition(model.PrivacyNoteStatusWithdrawn) {
		return
	}
	p.transitionNote(ctx, n, model.PrivacyNoteStatusWithdrawn, db.NoteUpdate{TxSignature: signature})
}

func (p *Processor) transitionNote(ctx context.Context, n *model.PrivacyNote, to model.PrivacyNoteStatus, u db.NoteUpdate) {
	u.At = p.now()
	if err := p.store.TransitionNote(ctx, n.ID, n.Status, to, u); err != nil {
		p.logger.Error("failed to update privacy note",
			zap.String("note_id", n.ID),
			zap.String("from", string(n.Status)),
			zap.String("to", string(to)),
			zap.Error(err),
		)
	}
}
