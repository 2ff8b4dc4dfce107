package invoices

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/calendar"
	"github.com/fieldledger/fieldledger/internal/clients"
	"github.com/fieldledger/fieldledger/internal/db"
	"github.com/fieldledger/fieldledger/internal/db/transaction"
	"github.com/fieldledger/fieldledger/internal/documents"
	"github.com/fieldledger/fieldledger/internal/money"
	"github.com/fieldledger/fieldledger/internal/validation"
)

var invoiceCols = []string{
	"id", "account_id", "client_id", "quote_id", "number", "status", "line_items", "tax_bps", "discount",
	"subtotal", "tax", "total", "amount_paid", "issue_date", "due_date", "notes", "paid_at", "created_at", "updated_at",
}

func invoiceRow(i *Invoice) *sqlmock.Rows {
	items, _ := i.LineItems.Value()
	var paidAt driver.Value
	if i.PaidAt != nil {
		paidAt = *i.PaidAt
	}
	return sqlmock.NewRows(invoiceCols).AddRow(
		i.ID.String(), i.AccountID.String(), i.ClientID.String(), nil, i.Number, string(i.Status), items,
		int64(i.TaxBps), int64(i.Discount), int64(i.Subtotal), int64(i.Tax), int64(i.Total), int64(i.AmountPaid),
		i.IssueDate.Time, i.DueDate.Time, i.Notes, paidAt, i.CreatedAt, i.UpdatedAt,
	)
}

type stubClients struct {
	err error
}

func (s stubClients) Get(ctx context.Context, accountID, id uuid.UUID) (*clients.Client, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &clients.Client{ID: id, AccountID: accountID}, nil
}

type stubQuota struct {
	used int
	err  error
}

func (q *stubQuota) CheckQuota(ctx context.Context, accountID uuid.UUID, quota appstate.Quota, used int) error {
	q.used = used
	return q.err
}

type notification struct {
	account uuid.UUID
	event   string
	payload interface{}
}

type recordingNotifier struct {
	sent []notification
}

func (n *recordingNotifier) Notify(ctx context.Context, accountID uuid.UUID, event string, payload interface{}) {
	n.sent = append(n.sent, notification{account: accountID, event: event, payload: payload})
}

type fixture struct {
	svc      *Service
	mock     sqlmock.Sqlmock
	quota    *stubQuota
	notifier *recordingNotifier
	account  uuid.UUID
}

func setup(t *testing.T) *fixture {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	f := &fixture{mock: mock, quota: &stubQuota{}, notifier: &recordingNotifier{}, account: uuid.New()}
	f.svc = NewService(NewRepository(conn), transaction.NewManager(conn), stubClients{}, f.quota, f.notifier, nil)
	f.svc.now = func() time.Time { return time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC) }
	return f
}

func sentInvoice(account uuid.UUID, total, paid money.Cents) *Invoice {
	return &Invoice{
		ID:         uuid.New(),
		AccountID:  account,
		ClientID:   uuid.New(),
		Number:     "INV-00003",
		Status:     StatusSent,
		LineItems:  documents.LineItems{{Description: "Service call", Quantity: 1, UnitPrice: total, Total: total}},
		Subtotal:   total,
		Total:      total,
		AmountPaid: paid,
		IssueDate:  calendar.NewDate(2025, 3, 1),
		DueDate:    calendar.NewDate(2025, 3, 31),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

func TestCreate(t *testing.T) {
	f := setup(t)
	client := uuid.New()

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM invoices").
		WithArgs(f.account, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	f.mock.ExpectQuery("SELECT invoice_prefix FROM accounts").
		WithArgs(f.account).
		WillReturnRows(sqlmock.NewRows([]string{"invoice_prefix"}).AddRow("ACME"))
	f.mock.ExpectQuery("INSERT INTO number_sequences").
		WithArgs(f.account, documents.KindInvoice).
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(3))
	f.mock.ExpectExec("INSERT INTO invoices").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	inv, err := f.svc.Create(context.Background(), f.account, Input{
		ClientID:  client,
		LineItems: documents.LineItems{{Description: "Water heater install", Quantity: 1, UnitPrice: 120000}, {Description: "Labour", Quantity: 3.5, UnitPrice: 9000}},
		TaxBps:    800,
		Discount:  1500,
	})
	require.NoError(t, err)

	assert.Equal(t, "ACME-00003", inv.Number)
	assert.Equal(t, StatusDraft, inv.Status)
	assert.Equal(t, money.Cents(151500), inv.Subtotal)
	assert.Equal(t, money.Cents(12000), inv.Tax)
	assert.Equal(t, money.Cents(162000), inv.Total)
	assert.Equal(t, calendar.NewDate(2025, 3, 14), inv.IssueDate)
	assert.Equal(t, calendar.NewDate(2025, 4, 13), inv.DueDate)
	assert.Equal(t, 2, f.quota.used)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreate_QuotaExceeded(t *testing.T) {
	f := setup(t)
	f.quota.err = appstate.ErrQuotaExceeded

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM invoices").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	f.mock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), f.account, Input{
		ClientID:  uuid.New(),
		LineItems: documents.LineItems{{Description: "Labour", Quantity: 1, UnitPrice: 100}},
	})
	assert.ErrorIs(t, err, appstate.ErrQuotaExceeded)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreate_Validation(t *testing.T) {
	f := setup(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), f.account, Input{
		IssueDate: calendar.NewDate(2025, 3, 10),
		DueDate:   calendar.NewDate(2025, 3, 1),
	})

	var verr *validation.Errors
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "client_id")
	assert.Contains(t, verr.Fields, "line_items")
	assert.Contains(t, verr.Fields, "due_date")
}

func TestCreate_UnknownClient(t *testing.T) {
	f := setup(t)
	f.svc.clients = stubClients{err: db.ErrNotFound}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), f.account, Input{
		ClientID:  uuid.New(),
		LineItems: documents.LineItems{{Description: "Labour", Quantity: 1, UnitPrice: 100}},
	})
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestRecordPayment_Partial(t *testing.T) {
	f := setup(t)
	inv := sentInvoice(f.account, 10000, 0)

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT (.+) FROM invoices WHERE (.+) FOR UPDATE").
		WithArgs(f.account, inv.ID).
		WillReturnRows(invoiceRow(inv))
	f.mock.ExpectExec("INSERT INTO invoice_payments").
		WithArgs(sqlmock.AnyArg(), inv.ID, int64(4000), "check", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("UPDATE invoices SET amount_paid").
		WithArgs(f.account, inv.ID, int64(4000), string(StatusPartiallyPaid), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	got, pay, err := f.svc.RecordPayment(context.Background(), f.account, inv.ID, PaymentInput{Amount: 4000, Method: " check "})
	require.NoError(t, err)

	assert.Equal(t, StatusPartiallyPaid, got.Status)
	assert.Equal(t, money.Cents(6000), got.BalanceDue())
	assert.Equal(t, money.Cents(4000), pay.Amount)
	assert.Empty(t, f.notifier.sent)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRecordPayment_PaidInFullNotifies(t *testing.T) {
	f := setup(t)
	inv := sentInvoice(f.account, 10000, 4000)
	inv.Status = StatusOverdue

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT (.+) FROM invoices WHERE (.+) FOR UPDATE").
		WillReturnRows(invoiceRow(inv))
	f.mock.ExpectExec("INSERT INTO invoice_payments").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("UPDATE invoices SET amount_paid").
		WithArgs(f.account, inv.ID, int64(10000), string(StatusPaid), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	got, _, err := f.svc.RecordPayment(context.Background(), f.account, inv.ID, PaymentInput{Amount: 6000})
	require.NoError(t, err)

	assert.Equal(t, StatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, EventPaid, f.notifier.sent[0].event)
	assert.Equal(t, PaidEvent{InvoiceID: inv.ID, Number: "INV-00003", Total: 10000}, f.notifier.sent[0].payload)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRecordPayment_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		paid    money.Cents
		amount  money.Cents
		wantErr error
	}{
		{name: "overpayment", status: StatusSent, amount: 10001, wantErr: ErrOverpayment},
		{name: "draft", status: StatusDraft, amount: 100, wantErr: ErrInvalidTransition},
		{name: "void", status: StatusVoid, amount: 100, wantErr: ErrInvalidTransition},
		{name: "already paid", status: StatusPaid, paid: 10000, amount: 1, wantErr: ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			inv := sentInvoice(f.account, 10000, tt.paid)
			inv.Status = tt.status

			f.mock.ExpectBegin()
			f.mock.ExpectQuery("SELECT (.+) FROM invoices WHERE (.+) FOR UPDATE").WillReturnRows(invoiceRow(inv))
			f.mock.ExpectRollback()

			_, _, err := f.svc.RecordPayment(context.Background(), f.account, inv.ID, PaymentInput{Amount: tt.amount})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NoError(t, f.mock.ExpectationsWereMet())
		})
	}
}

func TestRecordPayment_NonPositive(t *testing.T) {
	f := setup(t)
	_, _, err := f.svc.RecordPayment(context.Background(), f.account, uuid.New(), PaymentInput{Amount: 0})

	var verr *validation.Errors
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "amount")
}

func TestTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusDraft, StatusSent))
	assert.True(t, CanTransition(StatusSent, StatusOverdue))
	assert.True(t, CanTransition(StatusOverdue, StatusPaid))
	assert.True(t, CanTransition(StatusOverdue, StatusVoid))
	assert.False(t, CanTransition(StatusPaid, StatusVoid))
	assert.False(t, CanTransition(StatusVoid, StatusSent))
	assert.False(t, CanTransition(StatusDraft, StatusPaid))
	assert.False(t, CanTransition(StatusPartiallyPaid, StatusVoid))
}

func TestSend(t *testing.T) {
	f := setup(t)
	inv := sentInvoice(f.account, 5000, 0)
	inv.Status = StatusDraft

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT (.+) FROM invoices WHERE (.+) FOR UPDATE").WillReturnRows(invoiceRow(inv))
	f.mock.ExpectExec("UPDATE invoices SET status").
		WithArgs(f.account, inv.ID, string(StatusSent)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	got, err := f.svc.Send(context.Background(), f.account, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, got.Status)

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT (.+) FROM invoices WHERE (.+) FOR UPDATE").WillReturnRows(invoiceRow(got))
	f.mock.ExpectRollback()

	_, err = f.svc.Send(context.Background(), f.account, inv.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestVoid_OverdueWithPayments(t *testing.T) {
	f := setup(t)
	inv := sentInvoice(f.account, 5000, 1000)
	inv.Status = StatusOverdue

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT (.+) FROM invoices WHERE (.+) FOR UPDATE").WillReturnRows(invoiceRow(inv))
	f.mock.ExpectExec("UPDATE invoices SET status").
		WithArgs(f.account, inv.ID, "void").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	got, err := f.svc.Void(context.Background(), f.account, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVoid, got.Status)
	assert.Equal(t, money.Cents(1000), got.AmountPaid)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestVoid_PartiallyPaidRejected(t *testing.T) {
	f := setup(t)
	inv := sentInvoice(f.account, 5000, 1000)
	inv.Status = StatusPartiallyPaid

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT (.+) FROM invoices WHERE (.+) FOR UPDATE").WillReturnRows(invoiceRow(inv))
	f.mock.ExpectRollback()

	_, err := f.svc.Void(context.Background(), f.account, inv.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdate_OnlyDraft(t *testing.T) {
	f := setup(t)
	inv := sentInvoice(f.account, 5000, 0)

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT (.+) FROM invoices WHERE (.+) FOR UPDATE").WillReturnRows(invoiceRow(inv))
	f.mock.ExpectRollback()

	_, err := f.svc.Update(context.Background(), f.account, inv.ID, Input{
		ClientID:  inv.ClientID,
		LineItems: documents.LineItems{{Description: "Labour", Quantity: 1, UnitPrice: 100}},
	})
	assert.True(t, errors.Is(err, ErrNotEditable))
}

func TestSweepOverdue(t *testing.T) {
	f := setup(t)
	today := calendar.NewDate(2025, 3, 14)

	f.mock.ExpectQuery("UPDATE invoices SET status = 'overdue'").
		WithArgs("2025-03-14").
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "number"}).
			AddRow(uuid.NewString(), f.account.String(), "INV-00001").
			AddRow(uuid.NewString(), f.account.String(), "INV-00002"))

	n, err := f.svc.SweepOverdue(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDaysPastDue(t *testing.T) {
	inv := &Invoice{DueDate: calendar.NewDate(2025, 3, 1)}
	assert.Equal(t, 0, inv.DaysPastDue(calendar.NewDate(2025, 3, 1)))
	assert.Equal(t, 0, inv.DaysPastDue(calendar.NewDate(2025, 2, 20)))
	assert.Equal(t, 45, inv.DaysPastDue(calendar.NewDate(2025, 4, 15)))
}
