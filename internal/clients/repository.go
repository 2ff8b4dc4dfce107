package clients

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/db"
)

const clientColumns = `id, account_id, name, email, phone, address, notes, archived, created_at, updated_at`

// Repository persists clients. Every query is scoped to one account.
type Repository struct {
	db db.DBTX
}

// NewRepository creates a repository over conn
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClient(row rowScanner) (*Client, error) {
	c := &Client{}
	err := row.Scan(&c.ID, &c.AccountID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.Notes, &c.Archived, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, db.ConvertError(err)
	}
	return c, nil
}

// Create inserts a client
func (r *Repository) Create(ctx context.Context, c *Client) error {
	now := time.Now().UTC()
	c.ID = uuid.New()
	c.CreatedAt, c.UpdatedAt = now, now

	query := `
		INSERT INTO clients (id, account_id, name, email, phone, address, notes, archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.AccountID, c.Name, c.Email, c.Phone, c.Address, c.Notes, c.Archived, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", db.ConvertError(err))
	}
	return nil
}

// Get loads one client
func (r *Repository) Get(ctx context.Context, accountID, id uuid.UUID) (*Client, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE account_id = $1 AND id = $2`, accountID, id)
	return scanClient(row)
}

// Update writes the editable fields
func (r *Repository) Update(ctx context.Context, c *Client) error {
	c.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE clients
		SET name = $3, email = $4, phone = $5, address = $6, notes = $7, updated_at = $8
		WHERE account_id = $1 AND id = $2
	`
	return db.ExpectOne(r.db.ExecContext(ctx, query,
		c.AccountID, c.ID, c.Name, c.Email, c.Phone, c.Address, c.Notes, c.UpdatedAt))
}

// SetArchived archives or restores a client
func (r *Repository) SetArchived(ctx context.Context, accountID, id uuid.UUID, archived bool) error {
	query := `UPDATE clients SET archived = $3, updated_at = NOW() WHERE account_id = $1 AND id = $2`
	return db.ExpectOne(r.db.ExecContext(ctx, query, accountID, id, archived))
}

// Delete removes a client. Clients referenced by quotes or invoices cannot be
// deleted and surface db.ErrForeignKeyViolation.
func (r *Repository) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	return db.ExpectOne(r.db.ExecContext(ctx, `DELETE FROM clients WHERE account_id = $1 AND id = $2`, accountID, id))
}

// List returns clients matching f ordered by name, with the total match count
func (r *Repository) List(ctx context.Context, accountID uuid.UUID, f Filter) ([]*Client, int, error) {
	where := []string{"account_id = $1"}
	args := []interface{}{accountID}

	if !f.IncludeArchived {
		where = append(where, "archived = FALSE")
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(s))+"%")
		where = append(where, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args), len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count clients: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM clients WHERE %s ORDER BY LOWER(name), id LIMIT $%d OFFSET $%d`,
		clientColumns, clause, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	out := []*Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// CountActive counts non-archived clients for quota checks
func (r *Repository) CountActive(ctx context.Context, accountID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM clients WHERE account_id = $1 AND archived = FALSE`, accountID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count clients: %w", err)
	}
	return n, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
