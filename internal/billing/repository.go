package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/db"
	"github.com/fieldledger/fieldledger/internal/referral"
)

// Purchase is a completed payment
type Purchase = referral.Purchase

// Repository persists purchases and processed webhook event ids
type Repository struct {
	db db.DBTX
}

// NewRepository creates a repository over conn
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// WithTx returns a repository bound to tx
func (r *Repository) WithTx(tx db.DBTX) *Repository {
	return &Repository{db: tx}
}

// RecordEvent marks a webhook event as processed. It reports false when the
// event was seen before.
func (r *Repository) RecordEvent(ctx context.Context, id, eventType string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_events (id, type, received_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, id, eventType, at)
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event: %w", db.ConvertError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// InsertPurchase stores a purchase
func (r *Repository) InsertPurchase(ctx context.Context, p *Purchase) error {
	p.ID = uuid.New()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO purchases (id, account_id, product, amount, payment_kind, payment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.AccountID, p.Product, p.Amount, p.PaymentKind, p.PaymentID, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record purchase: %w", db.ConvertError(err))
	}
	return nil
}

// Purchases lists an account's purchases, newest first
func (r *Repository) Purchases(ctx context.Context, accountID uuid.UUID) ([]*Purchase, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, product, amount, payment_kind, payment_id, created_at
		FROM purchases
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var out []*Purchase
	for rows.Next() {
		p := &Purchase{}
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Product, &p.Amount, &p.PaymentKind, &p.PaymentID, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PurgeEvents deletes processed event ids received before cutoff
func (r *Repository) PurgeEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge webhook events: %w", err)
	}
	return res.RowsAffected()
}
