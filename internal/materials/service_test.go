package materials

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldledger/fieldledger/internal/db"
	"github.com/fieldledger/fieldledger/internal/money"
	"github.com/fieldledger/fieldledger/internal/validation"
)

var materialCols = []string{"id", "account_id", "name", "sku", "unit", "unit_cost", "markup_bps", "stock_quantity", "created_at", "updated_at"}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, mock
}

func TestSellPrice(t *testing.T) {
	tests := []struct {
		cost   money.Cents
		markup money.BasisPoints
		want   money.Cents
	}{
		{cost: 1000, markup: 0, want: 1000},
		{cost: 1000, markup: 2500, want: 1250},
		{cost: 333, markup: 1500, want: 383},
		{cost: 0, markup: 5000, want: 0},
	}
	for _, tt := range tests {
		m := &Material{UnitCost: tt.cost, MarkupBps: tt.markup}
		assert.Equal(t, tt.want, m.SellPrice())
	}
}

func TestCreate(t *testing.T) {
	conn, mock := setupMockDB(t)
	svc := NewService(NewRepository(conn))
	account := uuid.New()

	mock.ExpectExec("INSERT INTO materials").
		WithArgs(sqlmock.AnyArg(), account, "Copper pipe", "CP-12", "ft", int64(245), int64(3000), 100.0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m, err := svc.Create(context.Background(), account, Input{Name: "Copper pipe", SKU: "CP-12", Unit: "ft", UnitCost: 245, MarkupBps: 3000, StockQuantity: 100})
	require.NoError(t, err)
	assert.Equal(t, money.Cents(319), NewView(m).SellPrice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_Validation(t *testing.T) {
	conn, _ := setupMockDB(t)
	svc := NewService(NewRepository(conn))

	_, err := svc.Create(context.Background(), uuid.New(), Input{UnitCost: -1, MarkupBps: -5, StockQuantity: -2})

	var verr *validation.Errors
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 4)
}

func TestAdjustStock(t *testing.T) {
	conn, mock := setupMockDB(t)
	svc := NewService(NewRepository(conn))
	account, id := uuid.New(), uuid.New()

	mock.ExpectQuery("UPDATE materials").
		WithArgs(account, id, -4.5).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}).AddRow(5.5))

	qty, err := svc.AdjustStock(context.Background(), account, id, -4.5)
	require.NoError(t, err)
	assert.Equal(t, 5.5, qty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustStock_Insufficient(t *testing.T) {
	conn, mock := setupMockDB(t)
	svc := NewService(NewRepository(conn))
	account, id := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery("UPDATE materials").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM materials").
		WithArgs(account, id).
		WillReturnRows(sqlmock.NewRows(materialCols).AddRow(id.String(), account.String(), "Bolt", "", "each", 10, 0, 2.0, now, now))

	_, err := svc.AdjustStock(context.Background(), account, id, -3)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustStock_Missing(t *testing.T) {
	conn, mock := setupMockDB(t)
	svc := NewService(NewRepository(conn))

	mock.ExpectQuery("UPDATE materials").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM materials").WillReturnError(sql.ErrNoRows)

	_, err := svc.AdjustStock(context.Background(), uuid.New(), uuid.New(), -1)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestAdjustStock_ZeroDelta(t *testing.T) {
	conn, _ := setupMockDB(t)
	svc := NewService(NewRepository(conn))

	_, err := svc.AdjustStock(context.Background(), uuid.New(), uuid.New(), 0)

	var verr *validation.Errors
	assert.ErrorAs(t, err, &verr)
}
