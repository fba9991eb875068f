package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/AlexZinkM/split-custody/internal/client"
	"github.com/AlexZinkM/split-custody/internal/common"
	"github.com/AlexZinkM/split-custody/internal/security"

	"github.com/gagliardetto/solana-go"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"
)

// Database holds the storage settings shared by the server and the operator CLI.
type Database struct {
	DBType         string        `envconfig:"DB_TYPE" default:"sqlite"`
	DBDSN          string        `envconfig:"DB_DSN" default:"file:custody.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"`
	DBMaxOpenConns int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DBMaxIdleConns int           `envconfig:"DB_MAX_IDLE_CONNS" default:"25"`
	DBConnLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

// Config contains all configuration parameters for the service.
// Secrets are decoded by Load into the ignored fields and the raw strings are dropped.
type Config struct {
	Database

	Port      string `envconfig:"PORT" default:"8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	SidecarURL     string        `envconfig:"SIDECAR_URL" required:"true"`
	SidecarToken   string        `envconfig:"SIDECAR_TOKEN"`
	SidecarTimeout time.Duration `envconfig:"SIDECAR_TIMEOUT" default:"30s"`

	SessionKeyB64 string `envconfig:"SESSION_KEY" required:"true"`

	PrivacyPeriod     time.Duration `envconfig:"PRIVACY_PERIOD" default:"24h"`
	PendingDepositTTL time.Duration `envconfig:"PENDING_DEPOSIT_TTL" default:"1h"`

	WorkerInterval    time.Duration `envconfig:"WORKER_INTERVAL" default:"30s"`
	WorkerTaskTimeout time.Duration `envconfig:"WORKER_TASK_TIMEOUT" default:"5m"`

	WithdrawalClaimLimit          int    `envconfig:"WITHDRAWAL_CLAIM_LIMIT" default:"10"`
	WithdrawalConcurrency         int    `envconfig:"WITHDRAWAL_CONCURRENCY" default:"4"`
	WithdrawalMaxPerCycleLamports uint64 `envconfig:"WITHDRAWAL_MAX_PER_CYCLE_LAMPORTS" default:"0"`
	WithdrawalTargetCurrency      string `envconfig:"WITHDRAWAL_TARGET_CURRENCY" default:"SOL"`
	MaxProcessingAttempts         int    `envconfig:"MAX_PROCESSING_ATTEMPTS" default:"5"`
	MicroDepositThresholdSOL      string `envconfig:"MICRO_DEPOSIT_THRESHOLD_SOL" default:"0.01"`
	MicroDepositThresholdLamports uint64 `ignored:"true"`

	BatchMinLamports    uint64 `envconfig:"BATCH_MIN_LAMPORTS" default:"100000000"`
	BatchOutputCurrency string `envconfig:"BATCH_OUTPUT_CURRENCY" default:"USDC"`
	BatchPoolKeyB58     string `envconfig:"BATCH_POOL_KEY"`

	SessionKey   security.Secret `ignored:"true"`
	BatchPoolKey security.Secret `ignored:"true"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.decode(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads only the storage settings. The CLI uses it so that
// migrate and maintenance run without sidecar or sealing secrets.
func LoadDatabase() (*Database, error) {
	d := &Database{}
	if err := envconfig.Process("", d); err != nil {
		return nil, fmt.Errorf("failed to process database config: %w", err)
	}
	return d, nil
}

func (c *Config) decode() error {
	key, err := base64.StdEncoding.DecodeString(c.SessionKeyB64)
	c.SessionKeyB64 = ""
	if err != nil {
		return fmt.Errorf("SESSION_KEY must be base64: %w", err)
	}
	if len(key) != 32 {
		clear(key)
		return fmt.Errorf("SESSION_KEY must decode to 32 bytes, got %d", len(key))
	}
	c.SessionKey = security.Secret(key)

	if c.BatchPoolKeyB58 != "" {
		pk, err := solana.PrivateKeyFromBase58(c.BatchPoolKeyB58)
		c.BatchPoolKeyB58 = ""
		if err != nil {
			return fmt.Errorf("BATCH_POOL_KEY is not a valid base58 private key: %w", err)
		}
		if len(pk) != 64 {
			return fmt.Errorf("BATCH_POOL_KEY must decode to 64 bytes, got %d", len(pk))
		}
		c.BatchPoolKey = security.Secret(pk)
	}

	c.MicroDepositThresholdLamports, err = common.SOLToLamports(c.MicroDepositThresholdSOL)
	if err != nil {
		return fmt.Errorf("invalid MICRO_DEPOSIT_THRESHOLD_SOL: %w", err)
	}

	if c.WithdrawalConcurrency < 1 {
		return errors.New("WITHDRAWAL_CONCURRENCY must be at least 1")
	}
	if c.WithdrawalClaimLimit < 1 {
		return errors.New("WITHDRAWAL_CLAIM_LIMIT must be at least 1")
	}
	if c.WorkerInterval <= 0 {
		return errors.New("WORKER_INTERVAL must be positive")
	}
	if c.SidecarTimeout <= 0 {
		return errors.New("SIDECAR_TIMEOUT must be positive")
	}
	// A task cut off mid-call reverts its session and counts a failed attempt,
	// so one fully retried sidecar call has to fit.
	if budget := client.CallBudget(client.SidecarConfig{Timeout: c.SidecarTimeout}); c.WorkerTaskTimeout <= budget {
		return fmt.Errorf("WORKER_TASK_TIMEOUT (%s) must exceed the longest retried sidecar call (%s)", c.WorkerTaskTimeout, budget)
	}
	return nil
}

// Wipe clears decoded secrets.
func (c *Config) Wipe() {
	c.SessionKey.Wipe()
	c.BatchPoolKey.Wipe()
}

// PromptSecret reads a secret from the terminal without echo.
// The caller must clear the returned slice.
func PromptSecret(prompt string) ([]byte, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("stdin is not a terminal: run interactively to enter the credential")
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("credential cannot be empty")
	}
	return raw, nil
}
