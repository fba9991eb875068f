package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RunMigrations applies embedded migrations/<dbType>/*.up.sql in name order,
// recording each version in schema_migrations.
func RunMigrations(db *sql.DB, dbType string, logger *zap.Logger) error {
	dir := path.Join("migrations", dbType)
	entries, err := fs.ReadDir(embeddedMigrations, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("no migrations embedded for %s", dbType)
		}
		return fmt.Errorf("failed to read embedded migrations (%s): %w", dir, err)
	}

	var ups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			ups = append(ups, e.Name())
		}
	}
	sort.Strings(ups)

	if err := ensureSchemaMigrationsTable(db, dbType); err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}

	for _, name := range ups {
		version := strings.TrimSuffix(name, ".up.sql")

		applied, err := migrationApplied(db, dbType, version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		data, err := embeddedMigrations.ReadFile(path.Join(dir, name))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if err := applyMigration(db, dbType, version, string(data)); err != nil {
			return err
		}
		logger.Info("applied migration", zap.String("type", dbType), zap.String("version", version))
	}
	return nil
}

func placeholder(dbType string, n int) string {
	if dbType == TypePostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func ensureSchemaMigrationsTable(db *sql.DB, dbType string) error {
	// MySQL cannot index TEXT without a length.
	ddl := `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMP)`
	if dbType == TypeMySQL {
		ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (version VARCHAR(191) PRIMARY KEY, applied_at TIMESTAMP)`
	}
	_, err := db.Exec(ddl)
	return err
}

func migrationApplied(db *sql.DB, dbType, version string) (bool, error) {
	var one int
	err := db.QueryRow("SELECT 1 FROM schema_migrations WHERE version = "+placeholder(dbType, 1), version).Scan(&one)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check migration version %s: %w", version, err)
	}
}

// splitStatements breaks a migration into single statements so drivers
// without multi-statement support (MySQL by default) can run it.
func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func applyMigration(db *sql.DB, dbType, version, script string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %s: %w", version, err)
	}
	for _, stmt := range splitStatements(script) {
		if _, err := tx.Exec(stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %s: %w", version, err)
		}
	}

	insert := fmt.Sprintf("INSERT INTO schema_migrations(version, applied_at) VALUES(%s, %s)",
		placeholder(dbType, 1), placeholder(dbType, 2))
	if _, err := tx.Exec(insert, version, time.Now().UTC()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", version, err)
	}
	return nil
}
