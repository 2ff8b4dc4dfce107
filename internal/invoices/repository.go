package invoices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/calendar"
	"github.com/fieldledger/fieldledger/internal/db"
)

const invoiceColumns = `id, account_id, client_id, quote_id, number, status, line_items, tax_bps, discount, subtotal, tax, total, amount_paid, issue_date, due_date, notes, paid_at, created_at, updated_at`

// Repository persists invoices and payments
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

func scanInvoice(row rowScanner) (*Invoice, error) {
	i := &Invoice{}
	err := row.Scan(&i.ID, &i.AccountID, &i.ClientID, &i.QuoteID, &i.Number, &i.Status, &i.LineItems,
		&i.TaxBps, &i.Discount, &i.Subtotal, &i.Tax, &i.Total, &i.AmountPaid,
		&i.IssueDate, &i.DueDate, &i.Notes, &i.PaidAt, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, db.ConvertError(err)
	}
	return i, nil
}

// Insert stores a new invoice
func (r *Repository) Insert(ctx context.Context, i *Invoice) error {
	now := time.Now().UTC()
	i.ID = uuid.New()
	i.CreatedAt, i.UpdatedAt = now, now

	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err := r.db.ExecContext(ctx, query,
		i.ID, i.AccountID, i.ClientID, i.QuoteID, i.Number, i.Status, i.LineItems,
		i.TaxBps, i.Discount, i.Subtotal, i.Tax, i.Total, i.AmountPaid,
		i.IssueDate, i.DueDate, i.Notes, i.PaidAt, i.CreatedAt, i.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", db.ConvertError(err))
	}
	return nil
}

// Get loads one invoice
func (r *Repository) Get(ctx context.Context, accountID, id uuid.UUID) (*Invoice, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE account_id = $1 AND id = $2`, accountID, id)
	return scanInvoice(row)
}

// GetForUpdate loads and row-locks an invoice; call it inside a transaction
func (r *Repository) GetForUpdate(ctx context.Context, accountID, id uuid.UUID) (*Invoice, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE account_id = $1 AND id = $2 FOR UPDATE`, accountID, id)
	return scanInvoice(row)
}

// Update writes the editable fields and totals
func (r *Repository) Update(ctx context.Context, i *Invoice) error {
	i.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE invoices
		SET client_id = $3, line_items = $4, tax_bps = $5, discount = $6, subtotal = $7, tax = $8, total = $9,
		    issue_date = $10, due_date = $11, notes = $12, updated_at = $13
		WHERE account_id = $1 AND id = $2
	`
	return db.ExpectOne(r.db.ExecContext(ctx, query,
		i.AccountID, i.ID, i.ClientID, i.LineItems, i.TaxBps, i.Discount, i.Subtotal, i.Tax, i.Total,
		i.IssueDate, i.DueDate, i.Notes, i.UpdatedAt))
}

// SetStatus changes the status only
func (r *Repository) SetStatus(ctx context.Context, accountID, id uuid.UUID, status Status) error {
	return db.ExpectOne(r.db.ExecContext(ctx,
		`UPDATE invoices SET status = $3, updated_at = NOW() WHERE account_id = $1 AND id = $2`,
		accountID, id, status))
}

// ApplyPayment stores the running paid amount, status and paid timestamp
func (r *Repository) ApplyPayment(ctx context.Context, i *Invoice) error {
	i.UpdatedAt = time.Now().UTC()
	return db.ExpectOne(r.db.ExecContext(ctx,
		`UPDATE invoices SET amount_paid = $3, status = $4, paid_at = $5, updated_at = $6 WHERE account_id = $1 AND id = $2`,
		i.AccountID, i.ID, i.AmountPaid, i.Status, i.PaidAt, i.UpdatedAt))
}

// Delete removes an invoice
func (r *Repository) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	return db.ExpectOne(r.db.ExecContext(ctx, `DELETE FROM invoices WHERE account_id = $1 AND id = $2`, accountID, id))
}

// InsertPayment stores a payment row
func (r *Repository) InsertPayment(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invoice_payments (id, invoice_id, amount, method, note, paid_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.InvoiceID, p.Amount, p.Method, p.Note, p.PaidAt)
	if err != nil {
		return fmt.Errorf("failed to record payment: %w", db.ConvertError(err))
	}
	return nil
}

// Payments lists an invoice's payments oldest first
func (r *Repository) Payments(ctx context.Context, accountID, invoiceID uuid.UUID) ([]*Payment, error) {
	query := `
		SELECT p.id, p.invoice_id, p.amount, p.method, p.note, p.paid_at
		FROM invoice_payments p
		JOIN invoices i ON i.id = p.invoice_id
		WHERE i.account_id = $1 AND p.invoice_id = $2
		ORDER BY p.paid_at, p.id
	`
	rows, err := r.db.QueryContext(ctx, query, accountID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	out := []*Payment{}
	for rows.Next() {
		p := &Payment{}
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Note, &p.PaidAt); err != nil {
			return nil, db.ConvertError(err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// List returns a page of invoices newest first and the total match count
func (r *Repository) List(ctx context.Context, accountID uuid.UUID, f Filter) ([]*Invoice, int, error) {
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
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count invoices: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM invoices WHERE %s ORDER BY issue_date DESC, number DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, clause, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	out := []*Invoice{}
	for rows.Next() {
		i, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, i)
	}
	return out, total, rows.Err()
}

// CountCreated counts invoices created in [from, to)
func (r *Repository) CountCreated(ctx context.Context, accountID uuid.UUID, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invoices WHERE account_id = $1 AND created_at >= $2 AND created_at < $3`,
		accountID, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count invoices: %w", err)
	}
	return n, nil
}

// InvoicePrefix reads the account's configured number prefix
func (r *Repository) InvoicePrefix(ctx context.Context, accountID uuid.UUID) (string, error) {
	var prefix string
	err := r.db.QueryRowContext(ctx, `SELECT invoice_prefix FROM accounts WHERE id = $1`, accountID).Scan(&prefix)
	if err != nil {
		return "", db.ConvertError(err)
	}
	return prefix, nil
}

// Overdue identifies an invoice moved by the sweep
type Overdue struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Number    string
}

// MarkOverdue moves unpaid sent invoices due before today to overdue
func (r *Repository) MarkOverdue(ctx context.Context, today calendar.Date) ([]Overdue, error) {
	query := `
		UPDATE invoices
		SET status = 'overdue', updated_at = NOW()
		WHERE status IN ('sent', 'partially_paid') AND due_date < $1
		RETURNING id, account_id, number
	`
	rows, err := r.db.QueryContext(ctx, query, today)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep overdue invoices: %w", err)
	}
	defer rows.Close()

	var out []Overdue
	for rows.Next() {
		var o Overdue
		if err := rows.Scan(&o.ID, &o.AccountID, &o.Number); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
