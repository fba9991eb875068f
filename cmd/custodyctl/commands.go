package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/AlexZinkM/split-custody/internal/config"
	"github.com/AlexZinkM/split-custody/internal/custody"
	"github.com/AlexZinkM/split-custody/internal/db"
	"github.com/AlexZinkM/split-custody/internal/logging"
	"github.com/AlexZinkM/split-custody/solana"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func openStore(logLevel string) (db.Store, *zap.Logger, error) {
	logger, err := logging.New(logLevel, "console")
	if err != nil {
		return nil, nil, err
	}
	dbCfg, err := config.LoadDatabase()
	if err != nil {
		return nil, nil, err
	}
	if dbCfg.DBType == db.TypeMemory {
		return nil, nil, errors.New("DB_TYPE=memory has nothing to operate on")
	}
	store, err := db.Open(dbCfg.DBType, dbCfg.DBDSN, db.DefaultPoolOptions, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, logger, nil
}

func newMigrateCmd(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// opening the store applies migrations
			store, logger, err := openStore(*logLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return store.Close()
		},
	}
}

func newMaintenanceCmd(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "maintenance",
		Short: "Vacuum and optimize the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(*logLevel, "console")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			dbCfg, err := config.LoadDatabase()
			if err != nil {
				return err
			}
			return db.RunMaintenance(cmd.Context(), dbCfg.DBType, dbCfg.DBDSN, logger)
		},
	}
}

func newVerifyWalletCmd(logLevel *string) *cobra.Command {
	var (
		userID         string
		walletContext  string
		credentialFile string
	)

	cmd := &cobra.Command{
		Use:   "verify-wallet",
		Short: "Reconstruct a wallet key and check it against the enrolled public key",
		Long: "Reconstructs the key from Share A and Share B with the given credential and " +
			"compares the derived public key with the enrolled one. Nothing is signed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			credential, err := readCredential(credentialFile)
			if err != nil {
				return err
			}
			defer clear(credential) // Always clear credential from memory

			store, logger, err := openStore(*logLevel)
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
				_ = logger.Sync()
			}()

			svc := custody.NewService(store, store, solana.NewLocalSigner(), logger)
			pubkey, err := svc.VerifyWallet(cmd.Context(), userID, walletContext, credential)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wallet OK: %s\n", pubkey)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "wallet owner id")
	cmd.Flags().StringVar(&walletContext, "context", "", "wallet context (default primary)")
	cmd.Flags().StringVar(&credentialFile, "credential-file", "", "read raw credential bytes from file instead of prompting")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func readCredential(path string) ([]byte, error) {
	if path == "" {
		return config.PromptSecret("Credential: ")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("credential file is empty")
	}
	return raw, nil
}
