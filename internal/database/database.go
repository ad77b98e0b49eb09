// Package database opens the MySQL pool used by the credential check and the contact book.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// PoolConfig sizes the connection pool and the startup readiness wait.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingAttempts    int
	PingInterval    time.Duration
}

// DefaultPoolConfig returns the pool settings used when config leaves them unset.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    20,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
		PingAttempts:    10,
		PingInterval:    3 * time.Second,
	}
}

// Open opens a MySQL pool for dsn and waits until it answers a ping.
func Open(ctx context.Context, dsn string, cfg PoolConfig, logger *zap.Logger) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	Configure(db, cfg)
	if err := WaitReady(ctx, db, cfg.PingAttempts, cfg.PingInterval, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Configure applies pool limits. Zero fields keep the defaults.
func Configure(db *sql.DB, cfg PoolConfig) {
	def := DefaultPoolConfig()
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = def.MaxOpenConns
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = def.ConnMaxLifetime
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
}

// WaitReady pings db up to attempts times, sleeping interval between tries, so startup
// tolerates a database container that is still coming up.
func WaitReady(ctx context.Context, db *sql.DB, attempts int, interval time.Duration, logger *zap.Logger) error {
	if attempts <= 0 {
		attempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		logger.Warn("database ping failed", zap.Int("attempt", i), zap.Int("attempts", attempts), zap.Error(err))
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("database not ready: %w", ctx.Err())
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("database not ready after %d attempts: %w", attempts, err)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(64) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id INT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		phone VARCHAR(64) NOT NULL DEFAULT '',
		email VARCHAR(255) NOT NULL DEFAULT ''
	)`,
}

// EnsureSchema creates the users and contacts tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
