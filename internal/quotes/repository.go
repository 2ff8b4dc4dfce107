package quotes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/calendar"
	"github.com/fieldledger/fieldledger/internal/db"
)

const quoteColumns = `id, account_id, client_id, number, status, line_items, tax_bps, discount, subtotal, tax, total, valid_until, notes, invoice_id, created_at, updated_at`

// Repository persists quotes
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

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQuote(row rowScanner) (*Quote, error) {
	q := &Quote{}
	err := row.Scan(&q.ID, &q.AccountID, &q.ClientID, &q.Number, &q.Status, &q.LineItems, &q.TaxBps, &q.Discount,
		&q.Subtotal, &q.Tax, &q.Total, &q.ValidUntil, &q.Notes, &q.InvoiceID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, db.ConvertError(err)
	}
	return q, nil
}

// Insert stores a new quote
func (r *Repository) Insert(ctx context.Context, q *Quote) error {
	now := time.Now().UTC()
	q.ID = uuid.New()
	q.CreatedAt, q.UpdatedAt = now, now

	query := `
		INSERT INTO quotes (` + quoteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.db.ExecContext(ctx, query,
		q.ID, q.AccountID, q.ClientID, q.Number, q.Status, q.LineItems, q.TaxBps, q.Discount,
		q.Subtotal, q.Tax, q.Total, q.ValidUntil, q.Notes, q.InvoiceID, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create quote: %w", db.ConvertError(err))
	}
	return nil
}

// Get loads one quote
func (r *Repository) Get(ctx context.Context, accountID, id uuid.UUID) (*Quote, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE account_id = $1 AND id = $2`, accountID, id)
	return scanQuote(row)
}

// GetForUpdate loads and row-locks a quote; call it inside a transaction
func (r *Repository) GetForUpdate(ctx context.Context, accountID, id uuid.UUID) (*Quote, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE account_id = $1 AND id = $2 FOR UPDATE`, accountID, id)
	return scanQuote(row)
}

// Update writes the editable fields and totals
func (r *Repository) Update(ctx context.Context, q *Quote) error {
	q.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE quotes
		SET client_id = $3, line_items = $4, tax_bps = $5, discount = $6, subtotal = $7, tax = $8, total = $9,
		    valid_until = $10, notes = $11, updated_at = $12
		WHERE account_id = $1 AND id = $2
	`
	return db.ExpectOne(r.db.ExecContext(ctx, query,
		q.AccountID, q.ID, q.ClientID, q.LineItems, q.TaxBps, q.Discount, q.Subtotal, q.Tax, q.Total,
		q.ValidUntil, q.Notes, q.UpdatedAt))
}

// SetStatus changes the status and linked invoice
func (r *Repository) SetStatus(ctx context.Context, q *Quote) error {
	q.UpdatedAt = time.Now().UTC()
	return db.ExpectOne(r.db.ExecContext(ctx,
		`UPDATE quotes SET status = $3, invoice_id = $4, updated_at = $5 WHERE account_id = $1 AND id = $2`,
		q.AccountID, q.ID, q.Status, q.InvoiceID, q.UpdatedAt))
}

// Delete removes a quote
func (r *Repository) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	return db.ExpectOne(r.db.ExecContext(ctx, `DELETE FROM quotes WHERE account_id = $1 AND id = $2`, accountID, id))
}

// List returns a page of quotes newest first and the total match count
func (r *Repository) List(ctx context.Context, accountID uuid.UUID, f Filter) ([]*Quote, int, error) {
	where := []string{"account_id = $1"}
	args := []interface{}{accountID}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.ClientID != nil {
		args = append(args, *f.ClientID)
		where = append(where, fmt.Sprintf("client_id = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quotes WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count quotes: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM quotes WHERE %s ORDER BY created_at DESC, number DESC LIMIT $%d OFFSET $%d`,
		quoteColumns, clause, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list quotes: %w", err)
	}
	defer rows.Close()

	out := []*Quote{}
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, q)
	}
	return out, total, rows.Err()
}

// ExpireStale moves sent quotes whose validity ended before today to expired
func (r *Repository) ExpireStale(ctx context.Context, today calendar.Date) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE quotes SET status = 'expired', updated_at = NOW() WHERE status = 'sent' AND valid_until IS NOT NULL AND valid_until < $1`,
		today)
	if err != nil {
		return 0, fmt.Errorf("failed to expire quotes: %w", err)
	}
	return res.RowsAffected()
}
