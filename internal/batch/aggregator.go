// Package batch collects pooled micro-deposits into one wallet and swaps them together.
//
// A batch runs in three steps. Every pending_batch session is claimed into
// batching under a fresh batch id. Each member's own sealed key then moves its
// lamports into the pool wallet, and the signature is stored on the member so a
// later batch never collects it twice. Finally the pool key swaps the collected
// total and the members are stamped batched.
package batch

import (
	"context"
	"errors"
	"time"

	"github.com/AlexZinkM/split-custody/internal/apperr"
	"github.com/AlexZinkM/split-custody/internal/client"
	"github.com/AlexZinkM/split-custody/internal/common"
	"github.com/AlexZinkM/split-custody/internal/crypto"
	"github.com/AlexZinkM/split-custody/internal/db"
	"github.com/AlexZinkM/split-custody/internal/model"
	"github.com/AlexZinkM/split-custody/internal/security"
	"github.com/AlexZinkM/split-custody/solana"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrPoolKeyMissing is returned when a batch is due but no pool key is configured.
var ErrPoolKeyMissing = errors.New("batch pool key is not configured")

// Sidecar is the part of the sidecar contract used by batching.
type Sidecar interface {
	TransferSOL(ctx context.Context, key []byte, destination string, amountLamports uint64) (*model.SidecarTransferResponse, error)
	BatchSwap(ctx context.Context, key []byte, amountLamports uint64, outputCurrency string) (*model.SidecarBatchSwapResponse, error)
}

// Config controls when and how a batch is swapped.
type Config struct {
	MinLamports    uint64
	OutputCurrency string
	// PoolKey is the 64-byte key of the wallet that receives and swaps the members' funds.
	PoolKey security.Secret
	// MaxAttempts fails a member whose pool transfer keeps failing. 0 retries forever.
	MaxAttempts int
}

// Result describes one aggregation pass.
type Result struct {
	PendingLamports uint64
	PendingCount    int
	BatchID         string
	Members         int
	SwappedLamports uint64
	// Released counts members handed back to pending_batch, Failed those given up on.
	Released    int
	Failed      int
	TxSignature string
}

// Aggregator sums pending micro-deposits and swaps them once the threshold is met.
type Aggregator struct {
	store   db.DepositStore
	sidecar Sidecar
	sealer  *crypto.Sealer
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

// NewAggregator creates a new aggregator. sealer opens the members' stored keys.
func NewAggregator(store db.DepositStore, sidecar Sidecar, sealer *crypto.Sealer, cfg Config, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		store:   store,
		sidecar: sidecar,
		sealer:  sealer,
		cfg:     cfg,
		logger:  logger.Named("batch"),
		now:     time.Now,
	}
}

// member is a claimed session whose funds are in the pool.
type member struct {
	id     string
	amount uint64
}

// RunOnce batches every pending micro-deposit when their sum reaches MinLamports.
func (a *Aggregator) RunOnce(ctx context.Context) (Result, error) {
	a.reportStranded(ctx)

	total, count, err := a.store.SumPendingBatchLamports(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{PendingLamports: total, PendingCount: count}
	if count == 0 || total < a.cfg.MinLamports {
		return res, nil
	}
	if len(a.cfg.PoolKey) == 0 {
		return res, ErrPoolKeyMissing
	}
	poolKey := security.NewKeyBuffer(a.cfg.PoolKey.Bytes())
	defer poolKey.Release()

	var pool string
	if err := poolKey.Use(func(k []byte) error {
		var err error
		pool, err = solana.PublicKeyFromPrivate(k)
		return err
	}); err != nil {
		return res, apperr.Internal("invalid batch pool key", err)
	}

	batchID := uuid.NewString()
	claimed, err := a.store.ClaimPendingBatch(ctx, batchID, a.now())
	if err != nil {
		return res, err
	}
	if len(claimed) == 0 {
		return res, nil
	}
	res.BatchID = batchID
	log := a.logger.With(zap.String("batch_id", batchID))

	collected, collectErr := a.collect(ctx, log, batchID, pool, claimed, &res)
	if len(collected) == 0 {
		return res, collectErr
	}
	ids := make([]string, 0, len(collected))
	var amount uint64
	for _, m := range collected {
		ids = append(ids, m.id)
		amount += m.amount
	}

	if amount < a.cfg.MinLamports {
		// Their funds stay in the pool and count toward the next batch.
		a.release(ctx, log, ids, batchID, db.BatchRelease{At: a.now()})
		res.Released += len(ids)
		log.Info("collected total below threshold, batch deferred",
			zap.Int("members", len(ids)),
			zap.String("amount_sol", common.LamportsToSOL(amount)),
		)
		return res, collectErr
	}

	var resp *model.SidecarBatchSwapResponse
	if err := poolKey.Use(func(k []byte) error {
		var err error
		resp, err = a.sidecar.BatchSwap(ctx, k, amount, a.cfg.OutputCurrency)
		return err
	}); err != nil {
		log.Warn("batch swap failed", zap.Int("members", len(ids)), zap.Error(err))
		a.release(ctx, log, ids, batchID, db.BatchRelease{Reason: apperr.PublicMessage(err), CountAttempt: true, At: a.now()})
		res.Released += len(ids)
		return res, err
	}

	wctx, cancel := db.Detached(ctx)
	defer cancel()
	if err := a.store.MarkBatchComplete(wctx, ids, db.BatchResult{
		BatchID:     batchID,
		TxSignature: resp.TxSignature,
		BatchedAt:   a.now(),
	}); err != nil {
		// The swap went through. Members stay in batching so nothing swaps them again.
		log.Error("swap succeeded but batch could not be stamped",
			zap.String("signature", resp.TxSignature),
			zap.Strings("deposit_ids", ids),
			zap.Error(err),
		)
		return res, apperr.Internal("failed to mark batch complete", err)
	}

	log.Info("micro batch swapped",
		zap.Int("members", len(ids)),
		zap.String("amount_sol", common.LamportsToSOL(amount)),
		zap.String("signature", resp.TxSignature),
		zap.Uint64("output_amount", resp.OutputAmount),
	)
	res.Members = len(ids)
	res.SwappedLamports = amount
	res.TxSignature = resp.TxSignature
	return res, collectErr
}

// collect moves each claimed member's funds into the pool. Members collected
// by an earlier batch are taken as they are. A member whose transfer fails is
// handed back or failed and left out of the batch.
func (a *Aggregator) collect(ctx context.Context, log *zap.Logger, batchID, pool string, claimed []*model.DepositSession, res *Result) ([]member, error) {
	var out []member
	var firstErr error
	for _, d := range claimed {
		if d.BatchCollectSignature != "" {
			d.StoredShareB.Wipe()
			out = append(out, member{id: d.ID, amount: d.DepositAmountLamports})
			continue
		}

		signature, permanent, err := a.transfer(ctx, d, pool)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if a.recordCollectFailure(ctx, log, batchID, d, permanent, err) {
				res.Failed++
			} else {
				res.Released++
			}
			continue
		}

		wctx, cancel := db.Detached(ctx)
		if err := a.store.MarkBatchCollected(wctx, d.ID, batchID, signature, a.now()); err != nil {
			// The funds moved, so the member still belongs in this swap.
			log.Error("failed to record pool transfer",
				zap.String("deposit_id", d.ID),
				zap.String("signature", signature),
				zap.Error(err),
			)
		}
		cancel()
		out = append(out, member{id: d.ID, amount: d.DepositAmountLamports})
	}
	return out, firstErr
}

// transfer sends d's funds to the pool with d's own key. permanent is set when
// retrying cannot help.
func (a *Aggregator) transfer(ctx context.Context, d *model.DepositSession, pool string) (signature string, permanent bool, err error) {
	raw, err := a.sealer.Open(d.ID, d.StoredShareB)
	d.StoredShareB.Wipe()
	if err != nil {
		return "", true, apperr.Internal("sealed key cannot be opened", err)
	}
	key := security.NewKeyBuffer(raw)
	defer key.Release()

	err = key.Use(func(k []byte) error {
		if err := solana.VerifyKeyMatches(k, d.WalletAddress); err != nil {
			permanent = true
			return apperr.Internal("sealed key does not match deposit wallet", err)
		}
		resp, err := a.sidecar.TransferSOL(ctx, k, pool, d.DepositAmountLamports)
		if err != nil {
			permanent = errors.Is(err, client.ErrRejected)
			return err
		}
		signature = resp.TxSignature
		return nil
	})
	return signature, permanent, err
}

// recordCollectFailure releases d for a later batch, or fails it when retrying
// cannot help or its attempts are spent. It reports whether d was failed.
func (a *Aggregator) recordCollectFailure(ctx context.Context, log *zap.Logger, batchID string, d *model.DepositSession, permanent bool, cause error) bool {
	wctx, cancel := db.Detached(ctx)
	defer cancel()

	reason := apperr.PublicMessage(cause)
	attempts := d.ProcessingAttempts + 1
	if permanent || (a.cfg.MaxAttempts > 0 && attempts >= a.cfg.MaxAttempts) {
		log.Error("micro deposit could not be collected",
			zap.String("deposit_id", d.ID),
			zap.Int("attempts", attempts),
			zap.Error(cause),
		)
		if err := a.store.MarkFailed(wctx, d.ID, reason, a.now()); err != nil {
			log.Error("failed to mark deposit failed", zap.String("deposit_id", d.ID), zap.Error(err))
		}
		return true
	}

	log.Warn("pool transfer failed", zap.String("deposit_id", d.ID), zap.Int("attempts", attempts), zap.Error(cause))
	a.release(wctx, log, []string{d.ID}, batchID, db.BatchRelease{Reason: reason, CountAttempt: true, At: a.now()})
	return false
}

func (a *Aggregator) release(ctx context.Context, log *zap.Logger, ids []string, batchID string, r db.BatchRelease) {
	wctx, cancel := db.Detached(ctx)
	defer cancel()
	if err := a.store.ReleaseBatch(wctx, ids, batchID, r); err != nil {
		log.Error("failed to release batch members", zap.Strings("deposit_ids", ids), zap.Error(err))
	}
}

// reportStranded logs members left in batching by a batch that swapped but
// could not be stamped. They need an operator and are never retried.
func (a *Aggregator) reportStranded(ctx context.Context) {
	stranded, err := a.store.ListDepositsByStatus(ctx, model.DepositStatusBatching)
	if err != nil {
		a.logger.Warn("failed to list batching deposits", zap.Error(err))
		return
	}
	if len(stranded) == 0 {
		return
	}
	ids := make([]string, 0, len(stranded))
	for _, d := range stranded {
		d.StoredShareB.Wipe()
		ids = append(ids, d.ID)
	}
	a.logger.Error("micro deposits stranded in batching", zap.Strings("deposit_ids", ids))
}
