package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RunMaintenance performs engine-specific housekeeping: PRAGMA optimize,
// VACUUM and a WAL checkpoint on SQLite, VACUUM ANALYZE on Postgres and
// OPTIMIZE TABLE on the custody tables for MySQL.
func RunMaintenance(ctx context.Context, dbType, dsn string, logger *zap.Logger) error {
	sqlDB, err := openSQL(dbType, dsn, DefaultPoolOptions)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	switch dbType {
	case TypeSQLite:
		if _, err := sqlDB.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
			logger.Warn("sqlite optimize failed (ignored)", zap.Error(err))
		}
		if _, err := sqlDB.ExecContext(ctx, "VACUUM;"); err != nil {
			return fmt.Errorf("sqlite vacuum failed: %w", err)
		}
		_, _ = sqlDB.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE);")

		var res string
		if err := sqlDB.QueryRowContext(ctx, "PRAGMA integrity_check;").Scan(&res); err != nil {
			return fmt.Errorf("sqlite integrity_check failed: %w", err)
		}
		if res != "ok" {
			return fmt.Errorf("sqlite integrity_check failed: %s", res)
		}
	case TypePostgres:
		if _, err := sqlDB.ExecContext(ctx, "VACUUM ANALYZE;"); err != nil {
			return fmt.Errorf("postgres vacuum failed: %w", err)
		}
	case TypeMySQL:
		var lastErr error
		for _, table := range []string{"wallet_materials", "rotation_history", "deposit_sessions", "privacy_notes"} {
			if _, err := sqlDB.ExecContext(ctx, "OPTIMIZE TABLE "+table); err != nil {
				logger.Warn("mysql optimize table failed", zap.String("table", table), zap.Error(err))
				lastErr = err
			}
		}
		if lastErr != nil {
			return fmt.Errorf("mysql optimize encountered errors: %w", lastErr)
		}
	}
	logger.Info("maintenance complete", zap.String("type", dbType))
	return nil
}
