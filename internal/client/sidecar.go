package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AlexZinkM/split-custody/internal/apperr"
	"github.com/AlexZinkM/split-custody/internal/model"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 4 * time.Second
	maxErrorBody          = 4 << 10
)

var (
	// ErrRejected is returned when the sidecar answers with success:false or a non-2xx status.
	// It is permanent: the call is never retried.
	ErrRejected = errors.New("sidecar rejected request")
)

// RejectedError carries the sidecar's own explanation of a permanent failure.
type RejectedError struct {
	Path       string
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func (e *RejectedError) Unwrap() error { return ErrRejected }

// SidecarConfig configures SidecarClient.
type SidecarConfig struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// SidecarClient talks to the signing/swap sidecar.
type SidecarClient struct {
	baseURL        string
	token          string
	client         *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
	logger         *zap.Logger
}

func (cfg SidecarConfig) withDefaults() SidecarConfig {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	return cfg
}

// CallBudget is the longest one retried call can take with cfg: every attempt
// running into the timeout plus every backoff in between.
func CallBudget(cfg SidecarConfig) time.Duration {
	cfg = cfg.withDefaults()
	total := time.Duration(cfg.MaxRetries+1) * cfg.Timeout
	for i := 0; i < cfg.MaxRetries; i++ {
		total += backoffDelay(cfg.InitialBackoff, cfg.MaxBackoff, i)
	}
	return total
}

// NewSidecarClient creates a new sidecar client. Zero retry settings take the defaults.
func NewSidecarClient(cfg SidecarConfig, logger *zap.Logger) *SidecarClient {
	cfg = cfg.withDefaults()
	return &SidecarClient{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		token:          cfg.Token,
		client:         &http.Client{Timeout: cfg.Timeout},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		sleep:          sleepContext,
		logger:         logger.Named("sidecar"),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoff returns the delay before retry n (0-based).
func (c *SidecarClient) backoff(n int) time.Duration {
	return backoffDelay(c.initialBackoff, c.maxBackoff, n)
}

func backoffDelay(initial, limit time.Duration, n int) time.Duration {
	d := initial
	for i := 0; i < n; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return d
}

// encodeKey renders a 64-byte ed25519 key the way the sidecar expects it.
// The resulting string is immutable and cannot be wiped.
func encodeKey(key []byte) (string, error) {
	if len(key) != 64 {
		return "", fmt.Errorf("private key must be 64 bytes, got %d", len(key))
	}
	return solana.PrivateKey(key).String(), nil
}

type outcome interface {
	Outcome() (bool, string)
}

// do sends one request and decodes a 2xx body into out. Transport errors are
// returned as-is so the caller can retry them; everything else is wrapped in
// RejectedError or a decode error.
func (c *SidecarClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var r model.SidecarResult
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &r) == nil && r.Error != "" {
			msg = r.Error
		}
		return &RejectedError{Path: path, StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode sidecar %s response: %w", path, err)
	}
	if o, ok := out.(outcome); ok {
		if success, msg := o.Outcome(); !success {
			return &RejectedError{Path: path, StatusCode: resp.StatusCode, Message: msg}
		}
	}
	return nil
}

type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// post marshals in, sends it and clears the encoded body afterwards since it
// may carry key material. With retry set, transport failures are retried with
// exponential backoff; business rejections never are.
func (c *SidecarClient) post(ctx context.Context, path string, in, out any, retry bool) error {
	body, err := json.Marshal(in)
	if err != nil {
		return apperr.Internal("failed to encode sidecar request", err)
	}
	defer clear(body)

	attempts := 1
	if retry {
		attempts += c.maxRetries
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			delay := c.backoff(i - 1)
			c.logger.Warn("retrying sidecar call",
				zap.String("path", path),
				zap.Int("attempt", i+1),
				zap.Duration("backoff", delay),
				zap.Error(lastErr),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return apperr.Unavailable("sidecar unavailable", err)
			}
		}

		err := c.do(ctx, http.MethodPost, path, body, out)
		if err == nil {
			return nil
		}
		var te *transportError
		if !errors.As(err, &te) {
			return classify(err)
		}
		lastErr = te.err
		if ctx.Err() != nil {
			break
		}
	}
	c.logger.Error("sidecar unreachable", zap.String("path", path), zap.Int("attempts", attempts), zap.Error(lastErr))
	return apperr.Unavailable("sidecar unavailable", lastErr)
}

func classify(err error) error {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return &apperr.Error{Kind: apperr.KindConflict, Message: "sidecar rejected request", Err: rej}
	}
	return apperr.Internal("sidecar returned an invalid response", err)
}

// Deposit moves amount lamports from the key's wallet into the privacy protocol.
func (c *SidecarClient) Deposit(ctx context.Context, key []byte, amountLamports uint64) (*model.SidecarDepositResponse, error) {
	encoded, err := encodeKey(key)
	if err != nil {
		return nil, apperr.Internal("invalid signing key", err)
	}
	var out model.SidecarDepositResponse
	req := model.SidecarDepositRequest{UserPrivateKey: encoded, AmountLamports: amountLamports}
	if err := c.post(ctx, "/deposit", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Withdraw withdraws amount lamports, optionally swapping into targetCurrency.
func (c *SidecarClient) Withdraw(ctx context.Context, key []byte, amountLamports uint64, targetCurrency string) (*model.SidecarWithdrawResponse, error) {
	encoded, err := encodeKey(key)
	if err != nil {
		return nil, apperr.Internal("invalid signing key", err)
	}
	req := model.SidecarWithdrawRequest{UserPrivateKey: encoded, AmountLamports: amountLamports}
	if targetCurrency != "" && targetCurrency != model.CurrencySOL {
		req.TargetCurrency = &targetCurrency
	}
	var out model.SidecarWithdrawResponse
	if err := c.post(ctx, "/withdraw", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// SwapAndDeposit swaps amount of inputMint into SOL and deposits the result.
func (c *SidecarClient) SwapAndDeposit(ctx context.Context, key []byte, inputMint string, amount uint64) (*model.SidecarSwapAndDepositResponse, error) {
	encoded, err := encodeKey(key)
	if err != nil {
		return nil, apperr.Internal("invalid signing key", err)
	}
	var out model.SidecarSwapAndDepositResponse
	req := model.SidecarSwapAndDepositRequest{UserPrivateKey: encoded, InputMint: inputMint, Amount: amount}
	if err := c.post(ctx, "/deposit/swap-and-deposit", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Balance returns the privacy-protocol balance of the key. Not retried.
func (c *SidecarClient) Balance(ctx context.Context, key []byte) (*model.SidecarBalanceResponse, error) {
	encoded, err := encodeKey(key)
	if err != nil {
		return nil, apperr.Internal("invalid signing key", err)
	}
	var out model.SidecarBalanceResponse
	if err := c.post(ctx, "/withdraw/balance", model.SidecarBalanceRequest{UserPrivateKey: encoded}, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// BatchSwap converts the pooled micro-deposits held by key into outputCurrency.
func (c *SidecarClient) BatchSwap(ctx context.Context, key []byte, amountLamports uint64, outputCurrency string) (*model.SidecarBatchSwapResponse, error) {
	encoded, err := encodeKey(key)
	if err != nil {
		return nil, apperr.Internal("invalid signing key", err)
	}
	var out model.SidecarBatchSwapResponse
	req := model.SidecarBatchSwapRequest{PrivateKey: encoded, AmountLamports: amountLamports, OutputCurrency: outputCurrency}
	if err := c.post(ctx, "/batch/swap", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// TransferSOL sends amount lamports from the key's wallet to destination.
func (c *SidecarClient) TransferSOL(ctx context.Context, key []byte, destination string, amountLamports uint64) (*model.SidecarTransferResponse, error) {
	encoded, err := encodeKey(key)
	if err != nil {
		return nil, apperr.Internal("invalid signing key", err)
	}
	var out model.SidecarTransferResponse
	req := model.SidecarTransferRequest{UserPrivateKey: encoded, Destination: destination, AmountLamports: amountLamports}
	if err := c.post(ctx, "/transfer/sol", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifySOLTransfer asks the sidecar whether signature moved at least minLamports
// from source to destination. Not retried. A transfer that does not match is
// returned with OK false and no error.
func (c *SidecarClient) VerifySOLTransfer(ctx context.Context, req model.SidecarVerifyTransferRequest) (*model.SidecarVerifyTransferResponse, error) {
	var out model.SidecarVerifyTransferResponse
	if err := c.post(ctx, "/verify/sol-transfer", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health queries GET /health once.
func (c *SidecarClient) Health(ctx context.Context) (*model.SidecarHealthResponse, error) {
	var out model.SidecarHealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		var te *transportError
		if errors.As(err, &te) {
			return nil, apperr.Unavailable("sidecar unavailable", te.err)
		}
		return nil, classify(err)
	}
	return &out, nil
}
