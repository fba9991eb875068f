// Command custody serves the split-key custody API and runs the background
// worker for expiry, withdrawals and micro-batching.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlexZinkM/split-custody/internal/api"
	"github.com/AlexZinkM/split-custody/internal/batch"
	"github.com/AlexZinkM/split-custody/internal/client"
	"github.com/AlexZinkM/split-custody/internal/config"
	"github.com/AlexZinkM/split-custody/internal/crypto"
	"github.com/AlexZinkM/split-custody/internal/custody"
	"github.com/AlexZinkM/split-custody/internal/db"
	"github.com/AlexZinkM/split-custody/internal/deposit"
	"github.com/AlexZinkM/split-custody/internal/handler"
	"github.com/AlexZinkM/split-custody/internal/logging"
	"github.com/AlexZinkM/split-custody/internal/withdrawal"
	"github.com/AlexZinkM/split-custody/internal/worker"
	"github.com/AlexZinkM/split-custody/solana"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	defer cfg.Wipe()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := db.Open(cfg.DBType, cfg.DBDSN, db.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		ConnMaxIdleTime: db.DefaultPoolOptions.ConnMaxIdleTime,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
	}()

	sealer, err := crypto.NewSealer(cfg.SessionKey)
	if err != nil {
		return err
	}

	sidecar := client.NewSidecarClient(client.SidecarConfig{
		BaseURL: cfg.SidecarURL,
		Token:   cfg.SidecarToken,
		Timeout: cfg.SidecarTimeout,
	}, logger)

	custodySvc := custody.NewService(store, store, solana.NewLocalSigner(), logger)
	depositSvc := deposit.NewService(store, custodySvc, sidecar, sealer, deposit.Config{
		PrivacyPeriod:          cfg.PrivacyPeriod,
		PendingTTL:             cfg.PendingDepositTTL,
		MicroThresholdLamports: cfg.MicroDepositThresholdLamports,
		MaxAttempts:            cfg.MaxProcessingAttempts,
	}, logger)
	processor := withdrawal.NewProcessor(store, sidecar, sealer, withdrawal.Config{
		ClaimLimit:          cfg.WithdrawalClaimLimit,
		Concurrency:         cfg.WithdrawalConcurrency,
		MaxPerCycleLamports: cfg.WithdrawalMaxPerCycleLamports,
		MaxAttempts:         cfg.MaxProcessingAttempts,
		TargetCurrency:      cfg.WithdrawalTargetCurrency,
	}, logger)

	tasks := []worker.Task{
		{Name: "expire-pending", Timeout: cfg.WorkerTaskTimeout, Run: expireTask(depositSvc, logger)},
		{Name: "withdraw", Timeout: cfg.WorkerTaskTimeout, Run: withdrawTask(processor, logger)},
	}
	if len(cfg.BatchPoolKey) > 0 {
		aggregator := batch.NewAggregator(store, sidecar, sealer, batch.Config{
			MinLamports:    cfg.BatchMinLamports,
			OutputCurrency: cfg.BatchOutputCurrency,
			PoolKey:        cfg.BatchPoolKey,
			MaxAttempts:    cfg.MaxProcessingAttempts,
		}, logger)
		tasks = append(tasks, worker.Task{Name: "batch", Timeout: cfg.WorkerTaskTimeout, Run: batchTask(aggregator, logger)})
	} else {
		logger.Warn("BATCH_POOL_KEY not set, micro-deposits will stay pending")
	}
	runner := worker.NewRunner(cfg.WorkerInterval, logger, tasks...)

	router := api.SetupRouter(api.Handlers{
		Wallets:  handler.NewWalletHandler(custodySvc, logger),
		Deposits: handler.NewDepositHandler(depositSvc, logger),
		Health:   handler.NewHealthHandler(sidecar, logger),
	}, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return runner.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func expireTask(svc *deposit.Service, logger *zap.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		n, err := svc.ExpireStale(ctx)
		if n > 0 {
			logger.Info("expired pending deposits", zap.Int("count", n))
		}
		return err
	}
}

func withdrawTask(p *withdrawal.Processor, logger *zap.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		res, err := p.RunOnce(ctx)
		if res.Claimed > 0 {
			logger.Info("withdrawal cycle",
				zap.Int("claimed", res.Claimed),
				zap.Int("withdrawn", res.Withdrawn),
				zap.Int("partial", res.Partial),
				zap.Int("reverted", res.Reverted),
				zap.Int("failed", res.Failed),
			)
		}
		return err
	}
}

func batchTask(a *batch.Aggregator, logger *zap.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		res, err := a.RunOnce(ctx)
		if res.BatchID != "" {
			logger.Info("micro-batch cycle",
				zap.String("batch_id", res.BatchID),
				zap.Int("members", res.Members),
				zap.Uint64("swapped_lamports", res.SwappedLamports),
				zap.Int("released", res.Released),
				zap.Int("failed", res.Failed),
				zap.String("tx_signature", res.TxSignature),
			)
		}
		return err
	}
}
