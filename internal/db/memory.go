package db

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/AlexZinkM/split-custody/internal/model"
)

// MemoryStore is an in-process Store. One mutex guards every read-check-write,
// which gives it the same atomicity as the SQL implementations. Records are
// cloned on the way in and out so callers never share memory with the store.
type MemoryStore struct {
	mu        sync.Mutex
	wallets   map[string]*model.WalletMaterial
	rotations []model.RotationHistoryEntry
	deposits  map[string]*model.DepositSession
	notes     map[string]*model.PrivacyNote
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:  make(map[string]*model.WalletMaterial),
		deposits: make(map[string]*model.DepositSession),
		notes:    make(map[string]*model.PrivacyNote),
	}
}

var _ Store = (*MemoryStore)(nil)

// Close wipes every stored secret.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		w.ShareB.Wipe()
	}
	for _, d := range m.deposits {
		d.StoredShareB.Wipe()
	}
	return nil
}

func walletKey(userID, walletContext string) string {
	return userID + "\x00" + walletContext
}

func cloneWallet(w *model.WalletMaterial) *model.WalletMaterial {
	c := *w
	c.ShareACiphertext = slices.Clone(w.ShareACiphertext)
	c.ShareANonce = slices.Clone(w.ShareANonce)
	c.ShareASalt = slices.Clone(w.ShareASalt)
	c.PRFSalt = slices.Clone(w.PRFSalt)
	c.ShareB = w.ShareB.Clone()
	if w.KDF != nil {
		k := *w.KDF
		c.KDF = &k
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneDeposit(s *model.DepositSession) *model.DepositSession {
	c := *s
	c.StoredShareB = s.StoredShareB.Clone()
	c.CompletedAt = cloneTime(s.CompletedAt)
	c.WithdrawalAvailableAt = cloneTime(s.WithdrawalAvailableAt)
	c.WithdrawnAt = cloneTime(s.WithdrawnAt)
	c.BatchedAt = cloneTime(s.BatchedAt)
	return &c
}

// CreateWallet inserts w, rejecting a second wallet for the same (user, context) or public key.
func (m *MemoryStore) CreateWallet(_ context.Context, w *model.WalletMaterial) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := walletKey(w.UserID, w.Context)
	if _, ok := m.wallets[key]; ok {
		return ErrDuplicate
	}
	for _, existing := range m.wallets {
		if existing.PublicKey == w.PublicKey {
			return ErrDuplicate
		}
	}
	c := cloneWallet(w)
	c.CreatedAt = utc(c.CreatedAt)
	c.UpdatedAt = utc(c.UpdatedAt)
	m.wallets[key] = c
	return nil
}

// GetWallet returns a copy of the wallet for (user, context).
func (m *MemoryStore) GetWallet(_ context.Context, userID, walletContext string) (*model.WalletMaterial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[walletKey(userID, walletContext)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneWallet(w), nil
}

// GetWalletByPublicKey returns a copy of the wallet enrolled for publicKey.
func (m *MemoryStore) GetWalletByPublicKey(_ context.Context, publicKey string) (*model.WalletMaterial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.wallets {
		if w.PublicKey == publicKey {
			return cloneWallet(w), nil
		}
	}
	return nil, ErrNotFound
}

// ReplaceShareA overwrites the Share A path.
func (m *MemoryStore) ReplaceShareA(_ context.Context, userID, walletContext string, u model.ShareAUpdate, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wallets[walletKey(userID, walletContext)]
	if !ok {
		return ErrNotFound
	}
	w.AuthMethod = u.AuthMethod
	w.ShareACiphertext = slices.Clone(u.ShareACiphertext)
	w.ShareANonce = slices.Clone(u.ShareANonce)
	w.ShareASalt = slices.Clone(u.ShareASalt)
	w.PRFSalt = slices.Clone(u.PRFSalt)
	w.KDF = nil
	if u.KDF != nil {
		k := *u.KDF
		w.KDF = &k
	}
	w.PINHash = u.PINHash
	w.APIKeyID = u.APIKeyID
	w.UpdatedAt = utc(at)
	return nil
}

// DeleteWallet removes the wallet and wipes its Share B.
func (m *MemoryStore) DeleteWallet(_ context.Context, userID, walletContext string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := walletKey(userID, walletContext)
	w, ok := m.wallets[key]
	if !ok {
		return ErrNotFound
	}
	w.ShareB.Wipe()
	delete(m.wallets, key)
	return nil
}

// RecordRotation appends a provenance entry.
func (m *MemoryStore) RecordRotation(_ context.Context, e *model.RotationHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *e
	c.CreatedAt = utc(c.CreatedAt)
	m.rotations = append(m.rotations, c)
	return nil
}

// ListRotations returns the user's entries oldest first.
func (m *MemoryStore) ListRotations(_ context.Context, userID string) ([]model.RotationHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.RotationHistoryEntry
	for _, e := range m.rotations {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// CreateDeposit inserts a new session.
func (m *MemoryStore) CreateDeposit(_ context.Context, s *model.DepositSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.deposits[s.ID]; ok {
		return ErrDuplicate
	}
	c := cloneDeposit(s)
	c.CreatedAt = utc(c.CreatedAt)
	c.UpdatedAt = utc(c.UpdatedAt)
	c.ExpiresAt = utc(c.ExpiresAt)
	m.deposits[s.ID] = c
	return nil
}

// GetDeposit returns a copy of the session.
func (m *MemoryStore) GetDeposit(_ context.Context, id string) (*model.DepositSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.deposits[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDeposit(s), nil
}

// transition applies fn to the session if its status is one of from. Caller holds no lock.
func (m *MemoryStore) transition(id string, from []model.DepositStatus, fn func(s *model.DepositSession)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.deposits[id]
	if !ok {
		return ErrNotFound
	}
	if !slices.Contains(from, s.Status) {
		return ErrStateConflict
	}
	fn(s)
	return nil
}

// MarkDetected moves pending -> detected and records the observed amount.
func (m *MemoryStore) MarkDetected(_ context.Context, id string, amount uint64, signature string, at time.Time) error {
	return m.transition(id, []model.DepositStatus{model.DepositStatusPending}, func(s *model.DepositSession) {
		s.Status = model.DepositStatusDetected
		s.DetectedAmount = amount
		s.DetectedSignature = signature
		s.UpdatedAt = utc(at)
	})
}

// MarkProcessing moves detected -> processing.
func (m *MemoryStore) MarkProcessing(_ context.Context, id string, at time.Time) error {
	return m.transition(id, []model.DepositStatus{model.DepositStatusDetected}, func(s *model.DepositSession) {
		s.Status = model.DepositStatusProcessing
		s.UpdatedAt = utc(at)
	})
}

func (m *MemoryStore) complete(id string, to model.DepositStatus, c Completion) error {
	return m.transition(id, []model.DepositStatus{model.DepositStatusProcessing}, func(s *model.DepositSession) {
		completedAt := utc(c.CompletedAt)
		s.Status = to
		s.DepositAmountLamports = c.AmountLamports
		s.DepositSignature = c.DepositSignature
		s.StoredShareB = c.SealedKey.Clone()
		s.CompletedAt = &completedAt
		s.WithdrawalAvailableAt = nil
		if c.AvailableAt != nil {
			availableAt := utc(*c.AvailableAt)
			s.WithdrawalAvailableAt = &availableAt
		}
		s.UpdatedAt = completedAt
	})
}

// MarkCompleted moves processing -> completed and stores the sealed key.
func (m *MemoryStore) MarkCompleted(_ context.Context, id string, c Completion) error {
	return m.complete(id, model.DepositStatusCompleted, c)
}

// MarkPendingBatch moves processing -> pending_batch and stores the sealed key.
func (m *MemoryStore) MarkPendingBatch(_ context.Context, id string, c Completion) error {
	return m.complete(id, model.DepositStatusPendingBatch, c)
}

// RevertProcessing returns a processing session to the status it was claimed
// from and counts one failed attempt.
func (m *MemoryStore) RevertProcessing(_ context.Context, id, reason string, at time.Time) error {
	return m.transition(id, []model.DepositStatus{model.DepositStatusProcessing}, func(s *model.DepositSession) {
		s.Status = revertTarget(s)
		s.ProcessingAttempts++
		s.LastProcessingError = reason
		s.UpdatedAt = utc(at)
	})
}

// MarkFailed moves any non-terminal session to failed and counts one failed attempt.
func (m *MemoryStore) MarkFailed(_ context.Context, id, reason string, at time.Time) error {
	return m.transition(id, nonTerminalStatuses, func(s *model.DepositSession) {
		s.Status = model.DepositStatusFailed
		s.ProcessingAttempts++
		s.LastProcessingError = reason
		s.UpdatedAt = utc(at)
	})
}

// ClaimWithdrawable scans and marks under one lock.
func (m *MemoryStore) ClaimWithdrawable(_ context.Context, now time.Time, limit int) ([]*model.DepositSession, error) {
	if limit <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var eligible []*model.DepositSession
	for _, s := range m.deposits {
		if !slices.Contains(claimableStatuses, s.Status) || !s.HasStoredKey() || s.RemainingLamports() == 0 {
			continue
		}
		if s.WithdrawalAvailableAt == nil || s.WithdrawalAvailableAt.After(now) {
			continue
		}
		eligible = append(eligible, s)
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].WithdrawalAvailableAt.Before(*eligible[j].WithdrawalAvailableAt)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	out := make([]*model.DepositSession, 0, len(eligible))
	for _, s := range eligible {
		s.Status = model.DepositStatusProcessing
		s.UpdatedAt = utc(now)
		out = append(out, cloneDeposit(s))
	}
	return out, nil
}

// RecordWithdrawal adds amount to a processing session. The sealed key is
// wiped when nothing remains.
func (m *MemoryStore) RecordWithdrawal(_ context.Context, id string, amount uint64, at time.Time) (*model.DepositSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.deposits[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Status != model.DepositStatusProcessing || amount == 0 || amount > s.RemainingLamports() {
		return nil, ErrStateConflict
	}

	s.WithdrawnAmountLamports += amount
	s.UpdatedAt = utc(at)
	if s.RemainingLamports() == 0 {
		withdrawnAt := utc(at)
		s.Status = model.DepositStatusWithdrawn
		s.WithdrawnAt = &withdrawnAt
		s.StoredShareB.Wipe()
		s.StoredShareB = nil
	} else {
		s.Status = model.DepositStatusPartiallyWithdrawn
	}
	return cloneDeposit(s), nil
}

// ExpirePending moves pending sessions whose TTL has passed to expired.
func (m *MemoryStore) ExpirePending(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, s := range m.deposits {
		if s.Status == model.DepositStatusPending && !s.ExpiresAt.After(now) {
			s.Status = model.DepositStatusExpired
			s.UpdatedAt = utc(now)
			n++
		}
	}
	return n, nil
}

// DeletePending removes a pending session that never saw funds.
func (m *MemoryStore) DeletePending(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.deposits[id]
	if !ok {
		return ErrNotFound
	}
	if s.Status != model.DepositStatusPending || s.DetectedAmount != 0 {
		return ErrStateConflict
	}
	delete(m.deposits, id)
	return nil
}

// SumPendingBatchLamports totals the deposits waiting for a batch.
func (m *MemoryStore) SumPendingBatchLamports(_ context.Context) (uint64, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total uint64
	count := 0
	for _, s := range m.deposits {
		if s.Status == model.DepositStatusPendingBatch {
			total += s.DepositAmountLamports
			count++
		}
	}
	return total, count, nil
}

// ListDepositsByStatus returns copies of every session in status, oldest first.
func (m *MemoryStore) ListDepositsByStatus(_ context.Context, status model.DepositStatus) ([]*model.DepositSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.DepositSession
	for _, s := range m.deposits {
		if s.Status == status {
			out = append(out, cloneDeposit(s))
		}
	}
	sortByCreated(out)
	return out, nil
}

func sortByCreated(out []*model.DepositSession) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
}

// ClaimPendingBatch moves every pending_batch session to batching under one lock.
func (m *MemoryStore) ClaimPendingBatch(_ context.Context, batchID string, at time.Time) ([]*model.DepositSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.DepositSession
	for _, s := range m.deposits {
		if s.Status != model.DepositStatusPendingBatch {
			continue
		}
		s.Status = model.DepositStatusBatching
		s.BatchID = batchID
		s.UpdatedAt = utc(at)
		out = append(out, cloneDeposit(s))
	}
	sortByCreated(out)
	return out, nil
}

// MarkBatchCollected stores the pool transfer signature of a batching member.
func (m *MemoryStore) MarkBatchCollected(_ context.Context, id, batchID, signature string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.deposits[id]
	if !ok {
		return ErrNotFound
	}
	if s.Status != model.DepositStatusBatching || s.BatchID != batchID {
		return ErrStateConflict
	}
	s.BatchCollectSignature = signature
	s.UpdatedAt = utc(at)
	return nil
}

// checkBatching reports ErrStateConflict unless every id is batching under batchID. Caller holds the lock.
func (m *MemoryStore) checkBatching(ids []string, batchID string) error {
	for _, id := range ids {
		s, ok := m.deposits[id]
		if !ok {
			return ErrNotFound
		}
		if s.Status != model.DepositStatusBatching || s.BatchID != batchID {
			return ErrStateConflict
		}
	}
	return nil
}

// ReleaseBatch checks every member first and only then mutates.
func (m *MemoryStore) ReleaseBatch(_ context.Context, ids []string, batchID string, r BatchRelease) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkBatching(ids, batchID); err != nil {
		return err
	}
	for _, id := range ids {
		s := m.deposits[id]
		s.Status = model.DepositStatusPendingBatch
		s.BatchID = ""
		if r.CountAttempt {
			s.ProcessingAttempts++
		}
		if r.Reason != "" {
			s.LastProcessingError = r.Reason
		}
		s.UpdatedAt = utc(r.At)
	}
	return nil
}

// MarkBatchComplete checks every member first and only then mutates.
func (m *MemoryStore) MarkBatchComplete(_ context.Context, ids []string, b BatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkBatching(ids, b.BatchID); err != nil {
		return err
	}
	batchedAt := utc(b.BatchedAt)
	for _, id := range ids {
		s := m.deposits[id]
		s.Status = model.DepositStatusBatched
		s.BatchTxSignature = b.TxSignature
		s.BatchedAt = &batchedAt
		s.WithdrawnAmountLamports = s.DepositAmountLamports
		s.StoredShareB.Wipe()
		s.StoredShareB = nil
		s.UpdatedAt = batchedAt
	}
	return nil
}

// CreateNote inserts a note, one per deposit session.
func (m *MemoryStore) CreateNote(_ context.Context, n *model.PrivacyNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.notes[n.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range m.notes {
		if existing.DepositSessionID == n.DepositSessionID {
			return ErrDuplicate
		}
	}
	c := *n
	c.CreatedAt = utc(c.CreatedAt)
	c.UpdatedAt = utc(c.UpdatedAt)
	m.notes[n.ID] = &c
	return nil
}

// GetNoteByDeposit returns a copy of the note for a deposit session.
func (m *MemoryStore) GetNoteByDeposit(_ context.Context, depositID string) (*model.PrivacyNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.notes {
		if n.DepositSessionID == depositID {
			c := *n
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// TransitionNote moves a note from -> to only if it is still in from.
func (m *MemoryStore) TransitionNote(_ context.Context, id string, from, to model.PrivacyNoteStatus, u NoteUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notes[id]
	if !ok {
		return ErrNotFound
	}
	if n.Status != from {
		return ErrStateConflict
	}
	n.Status = to
	if u.IncrementAttempts {
		n.WithdrawalAttempts++
	}
	if u.LastError != "" {
		n.LastError = u.LastError
	}
	if u.TxSignature != "" {
		n.WithdrawalTxSignature = u.TxSignature
	}
	n.UpdatedAt = utc(u.At)
	return nil
}
