package clients

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/db"
	"github.com/fieldledger/fieldledger/internal/validation"
)

var clientCols = []string{"id", "account_id", "name", "email", "phone", "address", "notes", "archived", "created_at", "updated_at"}

type fixedQuota struct {
	state appstate.State
	used  []int
}

func (q *fixedQuota) CheckQuota(ctx context.Context, accountID uuid.UUID, quota appstate.Quota, used int) error {
	q.used = append(q.used, used)
	return appstate.DefaultLimits().CheckQuota(q.state, quota, used)
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, mock
}

func TestCreate(t *testing.T) {
	conn, mock := setupMockDB(t)
	quota := &fixedQuota{state: appstate.Base}
	svc := NewService(NewRepository(conn), quota)
	account := uuid.New()

	mock.ExpectQuery("SELECT COUNT").WithArgs(account).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectExec("INSERT INTO clients").
		WithArgs(sqlmock.AnyArg(), account, "Acme Corp", "ops@acme.test", "", "", "", false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	c, err := svc.Create(context.Background(), account, Input{Name: " Acme Corp ", Email: "OPS@acme.test"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, c.ID)
	assert.Equal(t, "ops@acme.test", c.Email)
	assert.Equal(t, []int{3}, quota.used)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_QuotaExceeded(t *testing.T) {
	conn, mock := setupMockDB(t)
	svc := NewService(NewRepository(conn), &fixedQuota{state: appstate.Base})

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))

	_, err := svc.Create(context.Background(), uuid.New(), Input{Name: "Eleventh"})
	assert.ErrorIs(t, err, appstate.ErrQuotaExceeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_Validation(t *testing.T) {
	conn, _ := setupMockDB(t)
	svc := NewService(NewRepository(conn), nil)

	_, err := svc.Create(context.Background(), uuid.New(), Input{Name: "  ", Email: "not-an-email"})

	var verr *validation.Errors
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "email")
}

func TestUpdate_NotFound(t *testing.T) {
	conn, mock := setupMockDB(t)
	svc := NewService(NewRepository(conn), nil)

	mock.ExpectQuery("SELECT (.+) FROM clients WHERE account_id").WillReturnError(sql.ErrNoRows)

	_, err := svc.Update(context.Background(), uuid.New(), uuid.New(), Input{Name: "X"})
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	conn, mock := setupMockDB(t)
	svc := NewService(NewRepository(conn), nil)
	account, id := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM clients WHERE account_id").
		WithArgs(account, id).
		WillReturnRows(sqlmock.NewRows(clientCols).AddRow(id.String(), account.String(), "Old", "", "", "", "", false, now, now))
	mock.ExpectExec("UPDATE clients").
		WithArgs(account, id, "New Name", "", "555-0100", "", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	c, err := svc.Update(context.Background(), account, id, Input{Name: "New Name", Phone: "555-0100"})
	require.NoError(t, err)
	assert.Equal(t, "New Name", c.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_Search(t *testing.T) {
	conn, mock := setupMockDB(t)
	svc := NewService(NewRepository(conn), nil)
	account := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM clients WHERE account_id = \$1 AND archived = FALSE AND \(LOWER\(name\) LIKE \$2`).
		WithArgs(account, `%50\%%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT (.+) FROM clients WHERE (.+) LIMIT \$3 OFFSET \$4`).
		WithArgs(account, `%50\%%`, 50, 0).
		WillReturnRows(sqlmock.NewRows(clientCols).AddRow(uuid.NewString(), account.String(), "50% Off Roofing", "", "", "", "", false, now, now))

	list, total, err := svc.List(context.Background(), account, Filter{Search: "50%"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "50% Off Roofing", list[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_Referenced(t *testing.T) {
	conn, mock := setupMockDB(t)
	svc := NewService(NewRepository(conn), nil)

	mock.ExpectExec("DELETE FROM clients").WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "invoices_client_id_fkey"})

	err := svc.Delete(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, db.ErrForeignKeyViolation)
}

func TestArchiveAndRestore(t *testing.T) {
	conn, mock := setupMockDB(t)
	quota := &fixedQuota{state: appstate.Paid}
	svc := NewService(NewRepository(conn), quota)
	account, id := uuid.New(), uuid.New()

	mock.ExpectExec("UPDATE clients SET archived").WithArgs(account, id, true).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(40))
	mock.ExpectExec("UPDATE clients SET archived").WithArgs(account, id, false).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, svc.Archive(context.Background(), account, id))
	require.NoError(t, svc.Restore(context.Background(), account, id))
	assert.NoError(t, mock.ExpectationsWereMet())
}
