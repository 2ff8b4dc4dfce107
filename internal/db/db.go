// Package db opens the PostgreSQL connection pool and maps driver errors onto
// sentinels the domain packages can test with errors.Is.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"
)

// DBTX is satisfied by *sql.DB and *sql.Tx so repositories can run inside or
// outside a transaction
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PoolConfig holds connection pool settings
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig returns conservative pool settings
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// Open connects to PostgreSQL through the pgx stdlib driver and verifies the
// connection
func Open(ctx context.Context, url string, pool PoolConfig) (*sql.DB, error) {
	if url == "" {
		return nil, fmt.Errorf("database url cannot be empty")
	}

	conn, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	Configure(conn, pool)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return conn, nil
}

// Configure applies pool settings, ignoring zero values
func Configure(conn *sql.DB, pool PoolConfig) {
	if pool.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		conn.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}
}
