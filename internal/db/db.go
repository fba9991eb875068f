package db

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported DB_TYPE values.
const (
	TypeMemory   = "memory"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
)

//go:embed migrations
var embeddedMigrations embed.FS

// sqlOpenFunc allows tests to override database opening behavior.
var sqlOpenFunc = sql.Open

// PoolOptions tune the database/sql pool.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolOptions are conservative values for small deployments.
var DefaultPoolOptions = PoolOptions{
	MaxOpenConns:    25,
	MaxIdleConns:    25,
	ConnMaxLifetime: 5 * time.Minute,
	ConnMaxIdleTime: time.Minute,
}

// driverName maps a DB_TYPE to its database/sql driver. pgx registers "pgx".
func driverName(dbType string) string {
	if dbType == TypePostgres {
		return "pgx"
	}
	return dbType
}

// Open returns the Store for dbType. "memory" needs no DSN; SQL engines are
// opened, migrated and wrapped in a long-lived *bun.DB.
func Open(dbType, dsn string, pool PoolOptions, logger *zap.Logger) (Store, error) {
	if dbType == TypeMemory {
		logger.Info("using in-memory store")
		return NewMemoryStore(), nil
	}

	sqlDB, err := openSQL(dbType, dsn, pool)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := RunMigrations(sqlDB, dbType, logger); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("database ready",
		zap.String("type", dbType),
		zap.Duration("migrations", time.Since(start)),
		zap.Int("max_open_conns", sqlDB.Stats().MaxOpenConnections),
	)

	return &BunStore{db: createBunDB(sqlDB, dbType), dbType: dbType}, nil
}

// openSQL opens and configures the pool. SQLite is single-writer, so it always gets one connection.
func openSQL(dbType, dsn string, pool PoolOptions) (*sql.DB, error) {
	switch dbType {
	case TypeSQLite, TypePostgres, TypeMySQL:
	default:
		return nil, fmt.Errorf("unsupported database type '%s'", dbType)
	}

	sqlDB, err := sqlOpenFunc(driverName(dbType), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbType == TypeSQLite {
		pool.MaxOpenConns = 1
		pool.MaxIdleConns = 1
		pool.ConnMaxLifetime = 0
		pool.ConnMaxIdleTime = 0
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	return sqlDB, nil
}

// createBunDB constructs a *bun.DB for the provided *sql.DB and dbType.
func createBunDB(sqlDB *sql.DB, dbType string) *bun.DB {
	switch dbType {
	case TypePostgres:
		return bun.NewDB(sqlDB, pgdialect.New())
	case TypeMySQL:
		return bun.NewDB(sqlDB, mysqldialect.New())
	default:
		return bun.NewDB(sqlDB, sqlitedialect.New())
	}
}
