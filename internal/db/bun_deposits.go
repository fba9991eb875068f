package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/AlexZinkM/split-custody/internal/model"

	"github.com/uptrace/bun"
)

const depositsTable = "deposit_sessions"

func statusStrings(statuses []model.DepositStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// CreateDeposit inserts a new session.
func (s *BunStore) CreateDeposit(ctx context.Context, d *model.DepositSession) error {
	if _, err := s.db.NewInsert().Model(newDepositRow(d)).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	return nil
}

func getDeposit(ctx context.Context, idb bun.IDB, id string) (*model.DepositSession, error) {
	row := new(depositRow)
	if err := idb.NewSelect().Model(row).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, notFound(err)
	}
	return row.toModel(), nil
}

// GetDeposit loads a session by id.
func (s *BunStore) GetDeposit(ctx context.Context, id string) (*model.DepositSession, error) {
	return getDeposit(ctx, s.db, id)
}

// transition runs one conditional UPDATE guarded on the current status.
func (s *BunStore) transition(ctx context.Context, id string, from []model.DepositStatus, set func(q *bun.UpdateQuery) *bun.UpdateQuery) error {
	q := s.db.NewUpdate().
		Table(depositsTable).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(statusStrings(from)))
	res, err := set(q).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update deposit %s: %w", id, err)
	}
	return checkAffected(ctx, s.db, depositsTable, res, id)
}

func (s *BunStore) MarkDetected(ctx context.Context, id string, amount uint64, signature string, at time.Time) error {
	if amount > math.MaxInt64 {
		return ErrStateConflict
	}
	return s.transition(ctx, id, []model.DepositStatus{model.DepositStatusPending}, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("status = ?", string(model.DepositStatusDetected)).
			Set("detected_amount = ?", int64(amount)).
			Set("detected_signature = ?", signature).
			Set("updated_at = ?", utc(at))
	})
}

func (s *BunStore) MarkProcessing(ctx context.Context, id string, at time.Time) error {
	return s.transition(ctx, id, []model.DepositStatus{model.DepositStatusDetected}, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("status = ?", string(model.DepositStatusProcessing)).
			Set("updated_at = ?", utc(at))
	})
}

func (s *BunStore) complete(ctx context.Context, id string, to model.DepositStatus, c Completion) error {
	if c.AmountLamports > math.MaxInt64 {
		return ErrStateConflict
	}
	completedAt := utc(c.CompletedAt)
	return s.transition(ctx, id, []model.DepositStatus{model.DepositStatusProcessing}, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("status = ?", string(to)).
			Set("deposit_amount_lamports = ?", int64(c.AmountLamports)).
			Set("deposit_signature = ?", c.DepositSignature).
			Set("stored_share_b = ?", c.SealedKey.Bytes()).
			Set("completed_at = ?", completedAt).
			Set("withdrawal_available_at = ?", nullTime(c.AvailableAt)).
			Set("updated_at = ?", completedAt)
	})
}

func (s *BunStore) MarkCompleted(ctx context.Context, id string, c Completion) error {
	return s.complete(ctx, id, model.DepositStatusCompleted, c)
}

func (s *BunStore) MarkPendingBatch(ctx context.Context, id string, c Completion) error {
	return s.complete(ctx, id, model.DepositStatusPendingBatch, c)
}

// RevertProcessing picks the return status in SQL so the decision and the write are one statement.
func (s *BunStore) RevertProcessing(ctx context.Context, id, reason string, at time.Time) error {
	return s.transition(ctx, id, []model.DepositStatus{model.DepositStatusProcessing}, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("status = CASE WHEN completed_at IS NULL THEN ? WHEN withdrawn_amount_lamports > 0 THEN ? ELSE ? END",
				string(model.DepositStatusDetected),
				string(model.DepositStatusPartiallyWithdrawn),
				string(model.DepositStatusCompleted)).
			Set("processing_attempts = processing_attempts + 1").
			Set("last_processing_error = ?", reason).
			Set("updated_at = ?", utc(at))
	})
}

func (s *BunStore) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	return s.transition(ctx, id, nonTerminalStatuses, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("status = ?", string(model.DepositStatusFailed)).
			Set("processing_attempts = processing_attempts + 1").
			Set("last_processing_error = ?", reason).
			Set("updated_at = ?", utc(at))
	})
}

const claimEligible = `status IN (?)
  AND stored_share_b IS NOT NULL
  AND withdrawal_available_at IS NOT NULL
  AND withdrawal_available_at <= ?
  AND withdrawn_amount_lamports < deposit_amount_lamports`

// ClaimWithdrawable marks eligible sessions processing and returns them.
// SQLite and Postgres do it in one UPDATE ... RETURNING, Postgres skipping rows
// locked by a concurrent claimer. MySQL cannot update a table it selects from,
// so it locks the candidate ids inside a transaction first.
func (s *BunStore) ClaimWithdrawable(ctx context.Context, now time.Time, limit int) ([]*model.DepositSession, error) {
	if limit <= 0 {
		return nil, nil
	}
	now = utc(now)
	claimable := bun.In(statusStrings(claimableStatuses))
	processing := string(model.DepositStatusProcessing)

	var rows []depositRow
	var err error
	if s.dbType == TypeMySQL {
		err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			var ids []string
			if err := tx.NewRaw(
				"SELECT id FROM deposit_sessions WHERE "+claimEligible+
					" ORDER BY withdrawal_available_at ASC LIMIT ? FOR UPDATE SKIP LOCKED",
				claimable, now, limit,
			).Scan(ctx, &ids); err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			if len(ids) == 0 {
				return nil
			}
			if _, err := tx.NewUpdate().
				Table(depositsTable).
				Set("status = ?", processing).
				Set("updated_at = ?", now).
				Where("id IN (?)", bun.In(ids)).
				Exec(ctx); err != nil {
				return err
			}
			return tx.NewSelect().Model(&rows).Where("id IN (?)", bun.In(ids)).Scan(ctx)
		})
	} else {
		lock := ""
		if s.dbType == TypePostgres {
			lock = " FOR UPDATE SKIP LOCKED"
		}
		query := "UPDATE deposit_sessions SET status = ?, updated_at = ? WHERE id IN (" +
			"SELECT id FROM deposit_sessions WHERE " + claimEligible +
			" ORDER BY withdrawal_available_at ASC LIMIT ?" + lock +
			") AND status IN (?) RETURNING *"
		err = s.db.NewRaw(query, processing, now, claimable, now, limit, claimable).Scan(ctx, &rows)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to claim deposits: %w", err)
	}

	out := make([]*model.DepositSession, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].WithdrawalAvailableAt.Before(*out[j].WithdrawalAvailableAt)
	})
	return out, nil
}

// RecordWithdrawal applies the increment, the status choice and the key wipe in one UPDATE.
// withdrawn_amount_lamports is assigned last because MySQL evaluates SET left to right.
func (s *BunStore) RecordWithdrawal(ctx context.Context, id string, amount uint64, at time.Time) (*model.DepositSession, error) {
	if amount == 0 || amount > math.MaxInt64 {
		return nil, ErrStateConflict
	}
	amt := int64(amount)
	at = utc(at)

	var out *model.DepositSession
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewRaw(`UPDATE deposit_sessions SET
  status = CASE WHEN withdrawn_amount_lamports + ? >= deposit_amount_lamports THEN ? ELSE ? END,
  stored_share_b = CASE WHEN withdrawn_amount_lamports + ? >= deposit_amount_lamports THEN NULL ELSE stored_share_b END,
  withdrawn_at = CASE WHEN withdrawn_amount_lamports + ? >= deposit_amount_lamports THEN ? ELSE withdrawn_at END,
  withdrawn_amount_lamports = withdrawn_amount_lamports + ?,
  updated_at = ?
WHERE id = ? AND status = ? AND withdrawn_amount_lamports + ? <= deposit_amount_lamports`,
			amt, string(model.DepositStatusWithdrawn), string(model.DepositStatusPartiallyWithdrawn),
			amt,
			amt, at,
			amt,
			at,
			id, string(model.DepositStatusProcessing), amt,
		).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to record withdrawal: %w", err)
		}
		if err := checkAffected(ctx, tx, depositsTable, res, id); err != nil {
			return err
		}
		out, err = getDeposit(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BunStore) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	now = utc(now)
	res, err := s.db.NewUpdate().
		Table(depositsTable).
		Set("status = ?", string(model.DepositStatusExpired)).
		Set("updated_at = ?", now).
		Where("status = ?", string(model.DepositStatusPending)).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to expire deposits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(n), nil
}

func (s *BunStore) DeletePending(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().
		Model((*depositRow)(nil)).
		Where("id = ?", id).
		Where("status = ?", string(model.DepositStatusPending)).
		Where("detected_amount = 0").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete deposit %s: %w", id, err)
	}
	return checkAffected(ctx, s.db, depositsTable, res, id)
}

func (s *BunStore) SumPendingBatchLamports(ctx context.Context) (uint64, int, error) {
	var total int64
	var count int
	if err := s.db.NewRaw(
		"SELECT COALESCE(SUM(deposit_amount_lamports), 0), COUNT(*) FROM deposit_sessions WHERE status = ?",
		string(model.DepositStatusPendingBatch),
	).Scan(ctx, &total, &count); err != nil {
		return 0, 0, fmt.Errorf("failed to sum pending batch: %w", err)
	}
	return uint64(total), count, nil
}

// ListDepositsByStatus returns every session in status, oldest first.
func (s *BunStore) ListDepositsByStatus(ctx context.Context, status model.DepositStatus) ([]*model.DepositSession, error) {
	return listDeposits(ctx, s.db, "status = ?", string(status))
}

func listDeposits(ctx context.Context, idb bun.IDB, where string, args ...any) ([]*model.DepositSession, error) {
	var rows []depositRow
	if err := idb.NewSelect().
		Model(&rows).
		Where(where, args...).
		Order("created_at ASC", "id ASC").
		Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}
	out := make([]*model.DepositSession, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// ClaimPendingBatch relabels the rows in one UPDATE and reads them back by
// batch id. The id is fresh per call, so the read sees exactly the claimed rows.
func (s *BunStore) ClaimPendingBatch(ctx context.Context, batchID string, at time.Time) ([]*model.DepositSession, error) {
	var out []*model.DepositSession
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewUpdate().
			Table(depositsTable).
			Set("status = ?", string(model.DepositStatusBatching)).
			Set("batch_id = ?", batchID).
			Set("updated_at = ?", utc(at)).
			Where("status = ?", string(model.DepositStatusPendingBatch)).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to claim pending batch: %w", err)
		}
		var err error
		out, err = listDeposits(ctx, tx, "status = ? AND batch_id = ?", string(model.DepositStatusBatching), batchID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BunStore) MarkBatchCollected(ctx context.Context, id, batchID, signature string, at time.Time) error {
	res, err := s.db.NewUpdate().
		Table(depositsTable).
		Set("batch_collect_signature = ?", signature).
		Set("updated_at = ?", utc(at)).
		Where("id = ?", id).
		Where("status = ?", string(model.DepositStatusBatching)).
		Where("batch_id = ?", batchID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark %s collected: %w", id, err)
	}
	return checkAffected(ctx, s.db, depositsTable, res, id)
}

// updateBatchMembers runs set against ids still batching under batchID and
// rolls back unless every one of them matched.
func (s *BunStore) updateBatchMembers(ctx context.Context, ids []string, batchID string, set func(q *bun.UpdateQuery) *bun.UpdateQuery) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().
			Table(depositsTable).
			Where("id IN (?)", bun.In(ids)).
			Where("status = ?", string(model.DepositStatusBatching)).
			Where("batch_id = ?", batchID)
		res, err := set(q).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update batch %s: %w", batchID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if int(n) != len(ids) {
			return ErrStateConflict
		}
		return nil
	})
}

func (s *BunStore) ReleaseBatch(ctx context.Context, ids []string, batchID string, r BatchRelease) error {
	return s.updateBatchMembers(ctx, ids, batchID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		q = q.
			Set("status = ?", string(model.DepositStatusPendingBatch)).
			Set("batch_id = ''").
			Set("updated_at = ?", utc(r.At))
		if r.CountAttempt {
			q = q.Set("processing_attempts = processing_attempts + 1")
		}
		if r.Reason != "" {
			q = q.Set("last_processing_error = ?", r.Reason)
		}
		return q
	})
}

// MarkBatchComplete rolls back unless every id was still batching under b.BatchID.
func (s *BunStore) MarkBatchComplete(ctx context.Context, ids []string, b BatchResult) error {
	batchedAt := utc(b.BatchedAt)
	return s.updateBatchMembers(ctx, ids, b.BatchID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("status = ?", string(model.DepositStatusBatched)).
			Set("batch_tx_signature = ?", b.TxSignature).
			Set("batched_at = ?", batchedAt).
			Set("withdrawn_amount_lamports = deposit_amount_lamports").
			Set("stored_share_b = NULL").
			Set("updated_at = ?", batchedAt)
	})
}
