package materials

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/db"
)

const materialColumns = `id, account_id, name, sku, unit, unit_cost, markup_bps, stock_quantity, created_at, updated_at`

// Repository persists materials
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

func scanMaterial(row rowScanner) (*Material, error) {
	m := &Material{}
	err := row.Scan(&m.ID, &m.AccountID, &m.Name, &m.SKU, &m.Unit, &m.UnitCost, &m.MarkupBps, &m.StockQuantity, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, db.ConvertError(err)
	}
	return m, nil
}

// Create inserts a material
func (r *Repository) Create(ctx context.Context, m *Material) error {
	now := time.Now().UTC()
	m.ID = uuid.New()
	m.CreatedAt, m.UpdatedAt = now, now

	query := `
		INSERT INTO materials (id, account_id, name, sku, unit, unit_cost, markup_bps, stock_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.AccountID, m.Name, m.SKU, m.Unit, m.UnitCost, m.MarkupBps, m.StockQuantity, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create material: %w", db.ConvertError(err))
	}
	return nil
}

// Get loads one material
func (r *Repository) Get(ctx context.Context, accountID, id uuid.UUID) (*Material, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+materialColumns+` FROM materials WHERE account_id = $1 AND id = $2`, accountID, id)
	return scanMaterial(row)
}

// Update writes the editable fields other than stock
func (r *Repository) Update(ctx context.Context, m *Material) error {
	m.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE materials
		SET name = $3, sku = $4, unit = $5, unit_cost = $6, markup_bps = $7, updated_at = $8
		WHERE account_id = $1 AND id = $2
	`
	return db.ExpectOne(r.db.ExecContext(ctx, query,
		m.AccountID, m.ID, m.Name, m.SKU, m.Unit, m.UnitCost, m.MarkupBps, m.UpdatedAt))
}

// Delete removes a material
func (r *Repository) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	return db.ExpectOne(r.db.ExecContext(ctx, `DELETE FROM materials WHERE account_id = $1 AND id = $2`, accountID, id))
}

// List returns the catalog ordered by name, optionally filtered by name or sku
func (r *Repository) List(ctx context.Context, accountID uuid.UUID, search string) ([]*Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materials WHERE account_id = $1`
	args := []interface{}{accountID}
	if s := strings.TrimSpace(search); s != "" {
		query += ` AND (LOWER(name) LIKE $2 OR LOWER(sku) LIKE $2)`
		args = append(args, "%"+strings.ToLower(s)+"%")
	}
	query += ` ORDER BY LOWER(name), id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list materials: %w", err)
	}
	defer rows.Close()

	out := []*Material{}
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AdjustStock adds delta to stock atomically, refusing to go below zero.
// It returns the new quantity.
func (r *Repository) AdjustStock(ctx context.Context, accountID, id uuid.UUID, delta float64) (float64, error) {
	query := `
		UPDATE materials
		SET stock_quantity = stock_quantity + $3, updated_at = NOW()
		WHERE account_id = $1 AND id = $2 AND stock_quantity + $3 >= 0
		RETURNING stock_quantity
	`
	var qty float64
	err := r.db.QueryRowContext(ctx, query, accountID, id, delta).Scan(&qty)
	if err == nil {
		return qty, nil
	}

	err = db.ConvertError(err)
	if !db.IsNotFound(err) {
		return 0, err
	}
	if _, getErr := r.Get(ctx, accountID, id); getErr != nil {
		return 0, getErr
	}
	return 0, ErrInsufficientStock
}
