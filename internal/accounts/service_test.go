package accounts

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/db"
	"github.com/fieldledger/fieldledger/internal/db/transaction"
	"github.com/fieldledger/fieldledger/internal/features"
	"github.com/fieldledger/fieldledger/internal/money"
	"github.com/fieldledger/fieldledger/internal/validation"
	"github.com/fieldledger/fieldledger/internal/web/auth"
)

var accountCols = []string{
	"id", "email", "password_hash", "business_name", "phone", "address", "default_tax_bps",
	"invoice_prefix", "role", "preview_mode", "feature_flags", "is_affiliate", "referral_code", "referred_by",
	"onboarded_at", "setup_completed_at", "trial_ends_at", "subscription_status", "plan", "subscription_id",
	"provider_customer_id", "past_due_since", "created_at", "updated_at",
}

func accountRow(a *Account) *sqlmock.Rows {
	opt := func(t *time.Time) driver.Value {
		if t == nil {
			return nil
		}
		return *t
	}
	var referredBy driver.Value
	if a.ReferredBy != nil {
		referredBy = a.ReferredBy.String()
	}
	flags := "{}"
	if len(a.FeatureFlags) > 0 {
		flags = "{" + a.FeatureFlags[0]
		for _, f := range a.FeatureFlags[1:] {
			flags += "," + f
		}
		flags += "}"
	}
	return sqlmock.NewRows(accountCols).AddRow(
		a.ID.String(), a.Email, a.PasswordHash, a.BusinessName, a.Phone, a.Address, int64(a.DefaultTaxBps),
		a.InvoicePrefix, a.Role, a.PreviewMode, flags, a.IsAffiliate, a.ReferralCode, referredBy,
		opt(a.OnboardedAt), opt(a.SetupCompletedAt), opt(a.TrialEndsAt), a.SubscriptionStatus, a.Plan, a.SubscriptionID,
		a.ProviderCustomerID, opt(a.PastDueSince), a.CreatedAt, a.UpdatedAt,
	)
}

type recordingListener struct {
	changed []uuid.UUID
}

func (l *recordingListener) AccountChanged(ctx context.Context, id uuid.UUID) {
	l.changed = append(l.changed, id)
}

type recordingLinker struct {
	referrer, referee uuid.UUID
	code              string
}

func (l *recordingLinker) LinkSignup(ctx context.Context, q db.DBTX, referrerID, refereeID uuid.UUID, code string) error {
	l.referrer, l.referee, l.code = referrerID, refereeID, code
	return nil
}

func setupService(t *testing.T) (*Service, sqlmock.Sqlmock, *recordingListener) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	svc := NewService(NewRepository(conn), transaction.NewManager(conn), auth.NewTokenService("secret", time.Hour), 14, nil)
	listener := &recordingListener{}
	svc.SetChangeListener(listener)
	return svc, mock, listener
}

func TestSignup(t *testing.T) {
	svc, mock, _ := setupService(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(sqlmock.AnyArg(), "owner@acme.test", sqlmock.AnyArg(), "Acme Plumbing", RoleUser, sqlmock.AnyArg(),
			sqlmock.AnyArg(), nil, appstate.SubscriptionNone, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	session, err := svc.Signup(context.Background(), SignupInput{
		Email:        "  Owner@Acme.test ",
		Password:     "supersecret",
		BusinessName: "Acme Plumbing",
	})
	require.NoError(t, err)

	assert.Equal(t, "owner@acme.test", session.Account.Email)
	assert.Len(t, session.Account.ReferralCode, 8)
	assert.NotEqual(t, "supersecret", session.Account.PasswordHash)
	assert.NotEmpty(t, session.Token)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignup_Validation(t *testing.T) {
	svc, _, _ := setupService(t)

	_, err := svc.Signup(context.Background(), SignupInput{Email: "nope", Password: "short", ReferralCode: "x"})

	var verr *validation.Errors
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "password")
	assert.Contains(t, verr.Fields, "referral_code")
}

func TestSignup_WithReferralCode(t *testing.T) {
	svc, mock, _ := setupService(t)
	linker := &recordingLinker{}
	svc.SetReferralLinker(linker)

	referrer := &Account{ID: uuid.New(), Email: "ref@acme.test", Role: RoleUser, ReferralCode: "ABCD2345", SubscriptionStatus: "active"}

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE referral_code").
		WithArgs("ABCD2345").
		WillReturnRows(accountRow(referrer))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(sqlmock.AnyArg(), "new@acme.test", sqlmock.AnyArg(), "", RoleUser, sqlmock.AnyArg(),
			sqlmock.AnyArg(), referrer.ID, appstate.SubscriptionNone, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	session, err := svc.Signup(context.Background(), SignupInput{
		Email: "new@acme.test", Password: "supersecret", ReferralCode: " abcd2345 ",
	})
	require.NoError(t, err)

	assert.Equal(t, referrer.ID, *session.Account.ReferredBy)
	assert.Equal(t, referrer.ID, linker.referrer)
	assert.Equal(t, session.Account.ID, linker.referee)
	assert.Equal(t, "ABCD2345", linker.code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignup_UnknownReferralCode(t *testing.T) {
	svc, mock, _ := setupService(t)

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE referral_code").
		WithArgs("ZZZZ9999").
		WillReturnError(sql.ErrNoRows)

	_, err := svc.Signup(context.Background(), SignupInput{Email: "a@acme.test", Password: "supersecret", ReferralCode: "ZZZZ9999"})
	assert.ErrorIs(t, err, ErrInvalidReferral)
}

func TestSignup_EmailTaken(t *testing.T) {
	svc, mock, _ := setupService(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"})
	mock.ExpectRollback()

	_, err := svc.Signup(context.Background(), SignupInput{Email: "a@acme.test", Password: "supersecret"})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignup_RetriesReferralCodeCollision(t *testing.T) {
	svc, mock, _ := setupService(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_referral_code_key"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := svc.Signup(context.Background(), SignupInput{Email: "a@acme.test", Password: "supersecret"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin(t *testing.T) {
	svc, mock, _ := setupService(t)
	hash, err := auth.HashPassword("supersecret")
	require.NoError(t, err)
	a := &Account{ID: uuid.New(), Email: "a@acme.test", PasswordHash: hash, Role: RoleUser, SubscriptionStatus: "none"}

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE LOWER").WithArgs("a@acme.test").WillReturnRows(accountRow(a))
	session, err := svc.Login(context.Background(), "A@acme.test", "supersecret")
	require.NoError(t, err)
	assert.Equal(t, a.ID, session.Account.ID)

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE LOWER").WillReturnRows(accountRow(a))
	_, err = svc.Login(context.Background(), "a@acme.test", "wrongpassword")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE LOWER").WillReturnError(sql.ErrNoRows)
	_, err = svc.Login(context.Background(), "ghost@acme.test", "supersecret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpdateSetup_StartsTrialOnce(t *testing.T) {
	svc, mock, listener := setupService(t)
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	onboarded := now.Add(-time.Hour)
	a := &Account{ID: uuid.New(), Email: "a@acme.test", Role: RoleUser, SubscriptionStatus: "none", OnboardedAt: &onboarded, BusinessName: "Acme"}

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id").WithArgs(a.ID).WillReturnRows(accountRow(a))
	mock.ExpectExec("UPDATE accounts SET business_name").
		WithArgs(a.ID, "Acme", "", "1 Main St", int64(825), "AC").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE accounts SET setup_completed_at").
		WithArgs(a.ID, now, now.AddDate(0, 0, 14)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id").WithArgs(a.ID).WillReturnRows(accountRow(a))

	addr, prefix := "1 Main St", "ac"
	tax := 825
	_, err := svc.UpdateSetup(context.Background(), a.ID, SetupInput{Address: &addr, InvoicePrefix: &prefix, DefaultTaxBps: bps(tax)})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a.ID}, listener.changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSetup_Validation(t *testing.T) {
	svc, mock, _ := setupService(t)
	a := &Account{ID: uuid.New(), Email: "a@acme.test", Role: RoleUser, SubscriptionStatus: "none"}

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id").WillReturnRows(accountRow(a))

	prefix := "INV-"
	_, err := svc.UpdateSetup(context.Background(), a.ID, SetupInput{InvoicePrefix: &prefix, DefaultTaxBps: bps(20000)})

	var verr *validation.Errors
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "invoice_prefix")
	assert.Contains(t, verr.Fields, "default_tax_bps")
}

func TestSetFeatureFlag(t *testing.T) {
	svc, mock, listener := setupService(t)
	a := &Account{ID: uuid.New(), Email: "a@acme.test", Role: RoleUser, SubscriptionStatus: "active", FeatureFlags: []string{features.FinancialPro}}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id").WithArgs(a.ID).WillReturnRows(accountRow(a))
	mock.ExpectExec("UPDATE accounts SET feature_flags").
		WithArgs(a.ID, "{\"financial_pro\",\"mileage_pro\"}").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id").WithArgs(a.ID).WillReturnRows(accountRow(a))

	_, err := svc.SetFeatureFlag(context.Background(), a.ID, features.MileagePro, true)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a.ID}, listener.changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetFeatureFlag_Unknown(t *testing.T) {
	svc, _, _ := setupService(t)

	_, err := svc.SetFeatureFlag(context.Background(), uuid.New(), "warp_drive", true)

	var verr *validation.Errors
	assert.ErrorAs(t, err, &verr)
}

func TestSetPreview_RequiresAdmin(t *testing.T) {
	svc, mock, _ := setupService(t)
	a := &Account{ID: uuid.New(), Email: "a@acme.test", Role: RoleUser, SubscriptionStatus: "none"}

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id").WillReturnRows(accountRow(a))

	_, err := svc.SetPreview(context.Background(), a.ID, true)
	assert.ErrorIs(t, err, ErrNotAdmin)
}

func TestAccount_Snapshot(t *testing.T) {
	now := time.Now()
	a := &Account{Role: RoleAdmin, PreviewMode: true, OnboardedAt: &now, SubscriptionStatus: "active"}

	snap := a.Snapshot()
	assert.True(t, snap.Admin)
	assert.True(t, snap.Preview)
	assert.True(t, snap.Onboarded)
	assert.False(t, snap.SetupComplete)
	assert.Equal(t, []string{}, snap.Flags)
	assert.Equal(t, appstate.AdminPreview, appstate.Resolve(snap, now))
}

func bps(n int) *money.BasisPoints {
	b := money.BasisPoints(n)
	return &b
}
