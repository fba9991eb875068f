package deposit

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/AlexZinkM/split-custody/internal/apperr"
	"github.com/AlexZinkM/split-custody/internal/crypto"
	"github.com/AlexZinkM/split-custody/internal/custody"
	"github.com/AlexZinkM/split-custody/internal/db"
	"github.com/AlexZinkM/split-custody/internal/model"
	"github.com/AlexZinkM/split-custody/solana"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const password = "hunter22"

var validSig = solanago.Signature{1, 2, 3, 4, 5, 6, 7, 8}.String()

type fakeSidecar struct {
	// onDeposit runs at the start of every Deposit call.
	onDeposit   func()
	depositErr  error
	deposits    []uint64
	depositKeys []string
	swapAmount  uint64
	verifyOK    bool
	observed    uint64
	verifyReqs  []model.SidecarVerifyTransferRequest
}

func (f *fakeSidecar) Deposit(_ context.Context, key []byte, amount uint64) (*model.SidecarDepositResponse, error) {
	if f.onDeposit != nil {
		f.onDeposit()
	}
	if f.depositErr != nil {
		return nil, f.depositErr
	}
	pub, _ := solana.PublicKeyFromPrivate(key)
	f.deposits = append(f.deposits, amount)
	f.depositKeys = append(f.depositKeys, pub)
	return &model.SidecarDepositResponse{SidecarResult: model.SidecarResult{Success: true}, TxSignature: "dep-sig"}, nil
}

func (f *fakeSidecar) SwapAndDeposit(_ context.Context, _ []byte, _ string, amount uint64) (*model.SidecarSwapAndDepositResponse, error) {
	f.deposits = append(f.deposits, amount)
	return &model.SidecarSwapAndDepositResponse{
		SidecarResult:      model.SidecarResult{Success: true},
		SwapTxSignature:    "swap-sig",
		DepositTxSignature: "swap-dep-sig",
		SOLAmountLamports:  f.swapAmount,
	}, nil
}

func (f *fakeSidecar) VerifySOLTransfer(_ context.Context, req model.SidecarVerifyTransferRequest) (*model.SidecarVerifyTransferResponse, error) {
	f.verifyReqs = append(f.verifyReqs, req)
	return &model.SidecarVerifyTransferResponse{OK: f.verifyOK, ObservedLamports: f.observed}, nil
}

type fixture struct {
	svc     *Service
	store   db.Store
	sidecar *fakeSidecar
	sealer  *crypto.Sealer
	address string
	now     time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	return newFixtureWithStore(t, cfg, db.NewMemoryStore())
}

func newSQLiteFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	store, err := db.Open(db.TypeSQLite, "file:"+name+"?mode=memory&cache=shared", db.DefaultPoolOptions, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return newFixtureWithStore(t, cfg, store)
}

func newFixtureWithStore(t *testing.T, cfg Config, store db.Store) *fixture {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	shares, err := crypto.Split(priv.Seed(), 3, 2)
	require.NoError(t, err)

	salt := make([]byte, 16)
	_, err = rand.Read(salt)
	require.NoError(t, err)
	kdf := &model.KDFParams{MemoryKiB: 19456, Iterations: 2, Parallelism: 1}
	nonce, ct, err := crypto.EncryptShareA([]byte(password), shares[0], crypto.KeyParams{Method: model.AuthMethodPassword, Salt: salt, KDF: kdf})
	require.NoError(t, err)

	keys := custody.NewService(store, store, solana.NewLocalSigner(), zap.NewNop())
	address := solanago.PublicKeyFromBytes(pub).String()
	_, err = keys.Enroll(context.Background(), "user-1", &model.EnrollRequest{
		PublicKey:        address,
		AuthMethod:       model.AuthMethodPassword,
		ShareACiphertext: ct,
		ShareANonce:      nonce,
		ShareASalt:       salt,
		KDF:              kdf,
		ShareB:           shares[1],
	})
	require.NoError(t, err)

	sealKey := make([]byte, 32)
	_, err = rand.Read(sealKey)
	require.NoError(t, err)
	sealer, err := crypto.NewSealer(sealKey)
	require.NoError(t, err)

	sc := &fakeSidecar{verifyOK: true}
	f := &fixture{
		svc:     NewService(store, keys, sc, sealer, cfg, zap.NewNop()),
		store:   store,
		sidecar: sc,
		sealer:  sealer,
		address: address,
		now:     time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc.now = func() time.Time { return f.now }
	return f
}

var defaultConfig = Config{
	PrivacyPeriod:          24 * time.Hour,
	PendingTTL:             time.Hour,
	MicroThresholdLamports: 10_000_000,
	MaxAttempts:            3,
}

func (f *fixture) create(t *testing.T, kind model.DepositKind, currency string) *model.DepositSession {
	t.Helper()
	req := &model.CreateDepositRequest{
		WalletAddress: f.address,
		WalletKind:    model.WalletKindEmbedded,
		DepositKind:   kind,
		Currency:      currency,
	}
	if currency != model.CurrencySOL {
		req.InputMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	}
	d, err := f.svc.Create(context.Background(), "user-1", req)
	require.NoError(t, err)
	return d
}

func (f *fixture) detect(t *testing.T, id string, amount uint64) {
	t.Helper()
	_, err := f.svc.Detect(context.Background(), "user-1", id, &model.DetectDepositRequest{Signature: validSig, AmountLamports: amount})
	require.NoError(t, err)
}

func TestCreateRequiresOwnedWallet(t *testing.T) {
	f := newFixture(t, defaultConfig)
	ctx := context.Background()

	d := f.create(t, model.DepositKindPrivate, "")
	require.Equal(t, model.DepositStatusPending, d.Status)
	require.Equal(t, model.CurrencySOL, d.Currency)
	require.Equal(t, f.now.Add(time.Hour), d.ExpiresAt)

	_, err := f.svc.Create(ctx, "user-2", &model.CreateDepositRequest{
		WalletAddress: f.address, WalletKind: model.WalletKindEmbedded, DepositKind: model.DepositKindPrivate,
	})
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.Create(ctx, "user-1", &model.CreateDepositRequest{
		WalletAddress: f.address, WalletKind: model.WalletKindEmbedded, DepositKind: model.DepositKindMicro, Currency: "USDC",
		InputMint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	})
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.Create(ctx, "user-1", &model.CreateDepositRequest{
		WalletAddress: f.address, WalletKind: "custodial", DepositKind: model.DepositKindPrivate,
	})
	require.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestPrivateDepositCompletes(t *testing.T) {
	f := newFixture(t, defaultConfig)
	ctx := context.Background()
	d := f.create(t, model.DepositKindPrivate, model.CurrencySOL)
	f.detect(t, d.ID, 1_000_000_000)

	got, err := f.svc.Complete(ctx, "user-1", d.ID, "", []byte(password))
	require.NoError(t, err)
	require.Equal(t, model.DepositStatusCompleted, got.Status)
	require.Equal(t, uint64(1_000_000_000), got.DepositAmountLamports)
	require.Equal(t, "dep-sig", got.DepositSignature)
	require.Equal(t, f.now.Add(24*time.Hour), *got.WithdrawalAvailableAt)
	require.Nil(t, got.StoredShareB, "sealed key is never returned to callers")

	require.Equal(t, []uint64{1_000_000_000}, f.sidecar.deposits)
	require.Equal(t, []string{f.address}, f.sidecar.depositKeys)

	stored, err := f.store.GetDeposit(ctx, d.ID)
	require.NoError(t, err)
	key, err := f.sealer.Open(d.ID, stored.StoredShareB)
	require.NoError(t, err)
	pub, err := solana.PublicKeyFromPrivate(key)
	require.NoError(t, err)
	require.Equal(t, f.address, pub)

	note, err := f.store.GetNoteByDeposit(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, model.PrivacyNoteStatusActive, note.Status)
	require.Equal(t, uint64(1_000_000_000), note.AmountLamports)
}

func TestPublicDepositIsAvailableImmediately(t *testing.T) {
	f := newFixture(t, defaultConfig)
	ctx := context.Background()
	d := f.create(t, model.DepositKindPublic, model.CurrencySOL)
	f.detect(t, d.ID, 50_000_000)

	got, err := f.svc.Complete(ctx, "user-1", d.ID, "", []byte(password))
	require.NoError(t, err)
	require.Equal(t, f.now, *got.WithdrawalAvailableAt)

	_, err = f.store.GetNoteByDeposit(ctx, d.ID)
	require.ErrorIs(t, err, db.ErrNotFound)
}

func TestSwapAndDepositUsesSwappedAmount(t *testing.T) {
	f := newFixture(t, defaultConfig)
	f.sidecar.swapAmount = 777_000_000
	d := f.create(t, model.DepositKindPrivate, "USDC")
	f.detect(t, d.ID, 100_000_000)

	got, err := f.svc.Complete(context.Background(), "user-1", d.ID, "", []byte(password))
	require.NoError(t, err)
	require.Equal(t, uint64(777_000_000), got.DepositAmountLamports)
	require.Equal(t, "swap-dep-sig", got.DepositSignature)
}

func TestWrongCredentialLeavesSessionUntouched(t *testing.T) {
	f := newFixture(t, defaultConfig)
	d := f.create(t, model.DepositKindPrivate, model.CurrencySOL)
	f.detect(t, d.ID, 1_000_000_000)

	_, err := f.svc.Complete(context.Background(), "user-1", d.ID, "", []byte("nope"))
	require.True(t, apperr.Is(err, apperr.KindInvalidCredentials))

	got, err := f.store.GetDeposit(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, model.DepositStatusDetected, got.Status)
	require.Zero(t, got.ProcessingAttempts)
	require.Empty(t, f.sidecar.deposits)
}

func TestSidecarFailureRevertsThenFails(t *testing.T) {
	cfg := defaultConfig
	cfg.MaxAttempts = 2
	f := newFixture(t, cfg)
	f.sidecar.depositErr = apperr.Unavailable("sidecar unavailable", context.DeadlineExceeded)
	ctx := context.Background()
	d := f.create(t, model.DepositKindPrivate, model.CurrencySOL)
	f.detect(t, d.ID, 1_000_000_000)

	_, err := f.svc.Complete(ctx, "user-1", d.ID, "", []byte(password))
	require.True(t, apperr.Is(err, apperr.KindServiceUnavailable))
	got, err := f.store.GetDeposit(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, model.DepositStatusDetected, got.Status)
	require.Equal(t, 1, got.ProcessingAttempts)
	require.Equal(t, "sidecar unavailable", got.LastProcessingError)

	_, err = f.svc.Complete(ctx, "user-1", d.ID, "", []byte(password))
	require.True(t, apperr.Is(err, apperr.KindServiceUnavailable))
	got, err = f.store.GetDeposit(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, model.DepositStatusFailed, got.Status)
	require.Equal(t, 2, got.ProcessingAttempts)
}

func TestSmallDepositIsParkedForBatch(t *testing.T) {
	f := newFixture(t, defaultConfig)
	ctx := context.Background()
	d := f.create(t, model.DepositKindPrivate, model.CurrencySOL)
	f.detect(t, d.ID, 20_000)

	got, err := f.svc.Complete(ctx, "user-1", d.ID, "", []byte(password))
	require.NoError(t, err)
	require.Equal(t, model.DepositStatusPendingBatch, got.Status)
	require.Nil(t, got.WithdrawalAvailableAt)
	require.Empty(t, f.sidecar.deposits)

	total, count, err := f.store.SumPendingBatchLamports(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(20_000), total)
	require.Equal(t, 1, count)

	// the parked key is the deposit wallet's own, so batching can move its funds
	stored, err := f.store.GetDeposit(ctx, d.ID)
	require.NoError(t, err)
	key, err := f.sealer.Open(d.ID, stored.StoredShareB)
	require.NoError(t, err)
	require.NoError(t, solana.VerifyKeyMatches(key, f.address))
}

func TestCancelledRequestStillRecordsFailure(t *testing.T) {
	f := newSQLiteFixture(t, defaultConfig)
	d := f.create(t, model.DepositKindPublic, model.CurrencySOL)
	f.detect(t, d.ID, 1_000_000_000)

	ctx, cancel := context.WithCancel(context.Background())
	f.sidecar.onDeposit = cancel
	f.sidecar.depositErr = apperr.Unavailable("sidecar unavailable", context.Canceled)

	_, err := f.svc.Complete(ctx, "user-1", d.ID, "", []byte(password))
	require.True(t, apperr.Is(err, apperr.KindServiceUnavailable))
	require.Error(t, ctx.Err())

	got, err := f.store.GetDeposit(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, model.DepositStatusDetected, got.Status)
	require.Equal(t, 1, got.ProcessingAttempts)
}

func TestExternalWalletTransferIsVerified(t *testing.T) {
	f := newFixture(t, defaultConfig)
	ctx := context.Background()
	d, err := f.svc.Create(ctx, "user-1", &model.CreateDepositRequest{
		WalletAddress: f.address, WalletKind: model.WalletKindExternal, DepositKind: model.DepositKindPrivate,
	})
	require.NoError(t, err)

	_, err = f.svc.Detect(ctx, "user-1", d.ID, &model.DetectDepositRequest{Signature: validSig, AmountLamports: 5})
	require.True(t, apperr.Is(err, apperr.KindValidation))

	source := solanago.NewWallet().PublicKey().String()
	f.sidecar.verifyOK = false
	_, err = f.svc.Detect(ctx, "user-1", d.ID, &model.DetectDepositRequest{Signature: validSig, AmountLamports: 5, SourceAddress: source})
	require.True(t, apperr.Is(err, apperr.KindValidation))

	f.sidecar.verifyOK = true
	f.sidecar.observed = 6
	got, err := f.svc.Detect(ctx, "user-1", d.ID, &model.DetectDepositRequest{Signature: validSig, AmountLamports: 5, SourceAddress: source})
	require.NoError(t, err)
	require.Equal(t, model.DepositStatusDetected, got.Status)
	require.Equal(t, uint64(6), got.DetectedAmount)

	last := f.sidecar.verifyReqs[len(f.sidecar.verifyReqs)-1]
	require.Equal(t, source, last.ExpectedSource)
	require.Equal(t, f.address, last.ExpectedDestination)
	require.Equal(t, uint64(5), *last.MinLamports)
}

func TestDeleteOnlyBeforeDetection(t *testing.T) {
	f := newFixture(t, defaultConfig)
	ctx := context.Background()
	pending := f.create(t, model.DepositKindPublic, model.CurrencySOL)
	detected := f.create(t, model.DepositKindPublic, model.CurrencySOL)
	f.detect(t, detected.ID, 10)

	require.True(t, apperr.Is(f.svc.Delete(ctx, "user-2", pending.ID), apperr.KindNotFound))
	require.True(t, apperr.Is(f.svc.Delete(ctx, "user-1", detected.ID), apperr.KindConflict))
	require.NoError(t, f.svc.Delete(ctx, "user-1", pending.ID))

	_, err := f.svc.Get(ctx, "user-1", pending.ID)
	require.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t, defaultConfig)
	ctx := context.Background()
	d := f.create(t, model.DepositKindPublic, model.CurrencySOL)

	n, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	f.now = f.now.Add(2 * time.Hour)
	n, err = f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := f.svc.Get(ctx, "user-1", d.ID)
	require.NoError(t, err)
	require.Equal(t, model.DepositStatusExpired, got.Status)
}
