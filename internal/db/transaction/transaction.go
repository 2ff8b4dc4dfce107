package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fieldledger/fieldledger/internal/db"
)

// ErrRetriesExhausted is returned when a retryable transaction keeps failing
var ErrRetriesExhausted = errors.New("transaction retries exhausted")

// IsolationLevel represents the transaction isolation level
type IsolationLevel int

const (
	// ReadCommitted prevents dirty reads (PostgreSQL default)
	ReadCommitted IsolationLevel = iota
	// RepeatableRead prevents non-repeatable reads
	RepeatableRead
	// Serializable provides full isolation
	Serializable
)

// String returns the string representation of the isolation level
func (l IsolationLevel) String() string {
	switch l {
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "READ COMMITTED"
	}
}

// ToSQLOptions converts IsolationLevel to sql.TxOptions
func (l IsolationLevel) ToSQLOptions() *sql.TxOptions {
	switch l {
	case RepeatableRead:
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
	case Serializable:
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	default:
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
}

// RetryConfig configures retry behavior for serialization failures
type RetryConfig struct {
	MaxRetries  int
	BaseBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  3,
		BaseBackoff: 50 * time.Millisecond,
	}
}

// Manager runs functions inside database transactions
type Manager struct {
	conn  *sql.DB
	retry RetryConfig
}

// NewManager creates a new transaction manager
func NewManager(conn *sql.DB) *Manager {
	return &Manager{conn: conn, retry: DefaultRetryConfig()}
}

// WithRetryConfig returns a copy of the manager using the given retry policy
func (m *Manager) WithRetryConfig(cfg RetryConfig) *Manager {
	return &Manager{conn: m.conn, retry: cfg}
}

// DB returns the underlying connection pool
func (m *Manager) DB() *sql.DB {
	return m.conn
}

// WithTransaction executes fn within a READ COMMITTED transaction.
// Commits on success, rolls back on error or panic.
func (m *Manager) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return m.WithTransactionIsolation(ctx, ReadCommitted, fn)
}

// WithTransactionIsolation executes fn within a transaction at the given isolation level
func (m *Manager) WithTransactionIsolation(ctx context.Context, level IsolationLevel, fn func(tx *sql.Tx) error) (err error) {
	tx, err := m.conn.BeginTx(ctx, level.ToSQLOptions())
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", db.ConvertError(err))
	}
	return nil
}

// WithRetry executes fn in a SERIALIZABLE transaction, retrying on
// serialization failures and deadlocks with exponential backoff
func (m *Manager) WithRetry(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error

	for attempt := 0; attempt < m.retry.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("transaction cancelled before retry %d: %w", attempt, ctx.Err())
		}

		err := m.WithTransactionIsolation(ctx, Serializable, fn)
		if err == nil {
			return nil
		}
		if !db.IsRetryable(db.ConvertError(err)) {
			return err
		}
		lastErr = err

		backoff := m.retry.BaseBackoff * time.Duration(1<<uint(attempt))
		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction cancelled during retry: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, m.retry.MaxRetries, lastErr)
}
