package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/calendar"
	"github.com/fieldledger/fieldledger/internal/db"
	"github.com/fieldledger/fieldledger/internal/money"
)

// Repository runs the read-only aggregate queries behind reports
type Repository struct {
	db db.DBTX
}

// NewRepository creates a repository over conn
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// Invoiced sums invoices issued in r, excluding drafts and voided ones
func (r *Repository) Invoiced(ctx context.Context, accountID uuid.UUID, rng calendar.Range) (money.Cents, int, error) {
	var total money.Cents
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total), 0), COUNT(*)
		FROM invoices
		WHERE account_id = $1 AND status NOT IN ('draft', 'void')
			AND issue_date >= $2 AND issue_date < $3
	`, accountID, rng.From, rng.To).Scan(&total, &n)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum invoiced: %w", err)
	}
	return total, n, nil
}

// Collected sums payments received in r
func (r *Repository) Collected(ctx context.Context, accountID uuid.UUID, rng calendar.Range) (money.Cents, error) {
	var total money.Cents
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(p.amount), 0)
		FROM invoice_payments p
		JOIN invoices i ON i.id = p.invoice_id
		WHERE i.account_id = $1 AND p.paid_at >= $2 AND p.paid_at < $3
	`, accountID, rng.From.Time, rng.To.Time).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum payments: %w", err)
	}
	return total, nil
}

// OpenBalances returns the unpaid balance and due date of every open invoice
func (r *Repository) OpenBalances(ctx context.Context, accountID uuid.UUID) ([]OpenBalance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT due_date, total - amount_paid
		FROM invoices
		WHERE account_id = $1 AND status IN ('sent', 'partially_paid', 'overdue')
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load open invoices: %w", err)
	}
	defer rows.Close()

	var out []OpenBalance
	for rows.Next() {
		var b OpenBalance
		if err := rows.Scan(&b.DueDate, &b.Balance); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// QuoteCounts counts quotes created in r by status
func (r *Repository) QuoteCounts(ctx context.Context, accountID uuid.UUID, from, to time.Time) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM quotes
		WHERE account_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY status
	`, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count quotes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
