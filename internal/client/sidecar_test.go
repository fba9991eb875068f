package client

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AlexZinkM/split-custody/internal/apperr"
	"github.com/AlexZinkM/split-custody/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, url string) (*SidecarClient, *[]time.Duration) {
	t.Helper()
	c := NewSidecarClient(SidecarConfig{BaseURL: url + "/", Token: "secret-token", Timeout: 5 * time.Second}, zap.NewNop())
	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return c, &delays
}

func testKey(t *testing.T) []byte {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return priv
}

// dropConnection closes the TCP connection without a response.
func dropConnection(t *testing.T, w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	require.True(t, ok)
	conn, _, err := hj.Hijack()
	require.NoError(t, err)
	_ = conn.Close()
}

func TestDepositSendsKeyAndToken(t *testing.T) {
	key := testKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/deposit", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		var req model.SidecarDepositRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, solana.PrivateKey(key).String(), req.UserPrivateKey)
		assert.Equal(t, uint64(1_000_000), req.AmountLamports)

		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "tx_signature": "sig-1", "user_pubkey": "pk"})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	resp, err := c.Deposit(context.Background(), key, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, "sig-1", resp.TxSignature)
}

func TestBusinessFailureIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "insufficient balance"})
	}))
	defer srv.Close()

	c, delays := newTestClient(t, srv.URL)
	_, err := c.Withdraw(context.Background(), testKey(t), 10, "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "insufficient balance")
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, *delays)
}

func TestNetworkErrorsExhaustRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		dropConnection(t, w)
	}))
	defer srv.Close()

	c, delays := newTestClient(t, srv.URL)
	_, err := c.Withdraw(context.Background(), testKey(t), 10, "USDC")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindServiceUnavailable))
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, *delays)
}

func TestNetworkErrorThenSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			dropConnection(t, w)
			return
		}
		var req model.SidecarWithdrawRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.NotNil(t, req.TargetCurrency) {
			assert.Equal(t, "USDC", *req.TargetCurrency)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "tx_signature": "w-sig", "amount_lamports": 10})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	resp, err := c.Withdraw(context.Background(), testKey(t), 10, "USDC")
	require.NoError(t, err)
	assert.Equal(t, "w-sig", resp.TxSignature)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBalanceAndVerifyAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		dropConnection(t, w)
	}))
	defer srv.Close()

	c, delays := newTestClient(t, srv.URL)
	_, err := c.Balance(context.Background(), testKey(t))
	assert.True(t, apperr.Is(err, apperr.KindServiceUnavailable))

	_, err = c.VerifySOLTransfer(context.Background(), model.SidecarVerifyTransferRequest{Signature: "s"})
	assert.True(t, apperr.Is(err, apperr.KindServiceUnavailable))

	assert.Equal(t, int32(2), calls.Load())
	assert.Empty(t, *delays)
}

func TestNon2xxIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "bad mint"})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	_, err := c.SwapAndDeposit(context.Background(), testKey(t), "mint", 5)
	var rej *RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, http.StatusBadRequest, rej.StatusCode)
	assert.Equal(t, "bad mint", rej.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestVerifyMismatchIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req model.SidecarVerifyTransferRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Nil(t, req.MinLamports)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "signature": req.Signature, "observed_lamports": 3})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	resp, err := c.VerifySOLTransfer(context.Background(), model.SidecarVerifyTransferRequest{Signature: "abc"})
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, uint64(3), resp.ObservedLamports)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok", "network": "devnet",
			"checks": map[string]bool{"rpc_connected": true, "sdk_loaded": true},
		})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, h.Healthy())
	assert.Equal(t, "devnet", h.Network)
}

func TestBackoffIsCapped(t *testing.T) {
	c := NewSidecarClient(SidecarConfig{BaseURL: "http://localhost"}, zap.NewNop())
	assert.Equal(t, 500*time.Millisecond, c.backoff(0))
	assert.Equal(t, time.Second, c.backoff(1))
	assert.Equal(t, 2*time.Second, c.backoff(2))
	assert.Equal(t, 4*time.Second, c.backoff(3))
	assert.Equal(t, 4*time.Second, c.backoff(6))
}

func TestRejectsShortKey(t *testing.T) {
	c := NewSidecarClient(SidecarConfig{BaseURL: "http://localhost"}, zap.NewNop())
	_, err := c.Deposit(context.Background(), make([]byte, 32), 1)
	assert.True(t, apperr.Is(err, apperr.KindInternal))
}

func TestTransferSOLSendsDestination(t *testing.T) {
	key := testKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transfer/sol", r.URL.Path)

		var req model.SidecarTransferRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, solana.PrivateKey(key).String(), req.UserPrivateKey)
		assert.Equal(t, "PoolAddress111", req.Destination)
		assert.Equal(t, uint64(42_000), req.AmountLamports)

		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "tx_signature": "t-sig"})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	resp, err := c.TransferSOL(context.Background(), key, "PoolAddress111", 42_000)
	require.NoError(t, err)
	assert.Equal(t, "t-sig", resp.TxSignature)
}

func TestCallBudget(t *testing.T) {
	require.Equal(t, 4*30*time.Second+3500*time.Millisecond, CallBudget(SidecarConfig{Timeout: 30 * time.Second}))
	require.Equal(t, 2*time.Second+time.Millisecond, CallBudget(SidecarConfig{
		Timeout: time.Second, MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond,
	}))
}
