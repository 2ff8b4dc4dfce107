package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/db"
)

const accountColumns = `id, email, password_hash, business_name, phone, address, default_tax_bps,
	invoice_prefix, role, preview_mode, feature_flags, is_affiliate, referral_code, referred_by,
	onboarded_at, setup_completed_at, trial_ends_at, subscription_status, plan, subscription_id,
	provider_customer_id, past_due_since, created_at, updated_at`

// Repository persists accounts
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

func scanAccount(row rowScanner) (*Account, error) {
	a := &Account{}
	var referredBy uuid.NullUUID
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.BusinessName, &a.Phone, &a.Address, &a.DefaultTaxBps,
		&a.InvoicePrefix, &a.Role, &a.PreviewMode, pq.Array(&a.FeatureFlags), &a.IsAffiliate, &a.ReferralCode, &referredBy,
		&a.OnboardedAt, &a.SetupCompletedAt, &a.TrialEndsAt, &a.SubscriptionStatus, &a.Plan, &a.SubscriptionID,
		&a.ProviderCustomerID, &a.PastDueSince, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, db.ConvertError(err)
	}
	if referredBy.Valid {
		id := referredBy.UUID
		a.ReferredBy = &id
	}
	if a.FeatureFlags == nil {
		a.FeatureFlags = []string{}
	}
	return a, nil
}

// Create inserts a new account
func (r *Repository) Create(ctx context.Context, a *Account) error {
	now := time.Now().UTC()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Role == "" {
		a.Role = RoleUser
	}
	if a.SubscriptionStatus == "" {
		a.SubscriptionStatus = appstate.SubscriptionNone
	}
	if a.FeatureFlags == nil {
		a.FeatureFlags = []string{}
	}
	a.CreatedAt, a.UpdatedAt = now, now

	var referredBy interface{}
	if a.ReferredBy != nil {
		referredBy = *a.ReferredBy
	}

	query := `
		INSERT INTO accounts (id, email, password_hash, business_name, role, feature_flags,
			referral_code, referred_by, subscription_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.Email, a.PasswordHash, a.BusinessName, a.Role, pq.Array(a.FeatureFlags),
		a.ReferralCode, referredBy, a.SubscriptionStatus, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", db.ConvertError(err))
	}
	return nil
}

// Get loads an account by id
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetByEmail loads an account by case-insensitive email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = $1`, NormalizeEmail(email))
	return scanAccount(row)
}

// GetByReferralCode loads the account owning a referral code
func (r *Repository) GetByReferralCode(ctx context.Context, code string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE referral_code = $1`, code)
	return scanAccount(row)
}

// GetBySubscriptionID loads the account holding a provider subscription
func (r *Repository) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE subscription_id = $1`, subscriptionID)
	return scanAccount(row)
}

// GetByCustomerID loads the account linked to a provider customer
func (r *Repository) GetByCustomerID(ctx context.Context, customerID string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE provider_customer_id = $1`, customerID)
	return scanAccount(row)
}

// List returns a page of accounts, newest first, with the total count
func (r *Repository) List(ctx context.Context, limit, offset int) ([]*Account, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count accounts: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// UpdateProfile writes the business details
func (r *Repository) UpdateProfile(ctx context.Context, a *Account) error {
	query := `
		UPDATE accounts
		SET business_name = $2, phone = $3, address = $4, default_tax_bps = $5,
			invoice_prefix = $6, updated_at = NOW()
		WHERE id = $1
	`
	return db.ExpectOne(r.db.ExecContext(ctx, query,
		a.ID, a.BusinessName, a.Phone, a.Address, a.DefaultTaxBps, a.InvoicePrefix))
}

// MarkOnboarded records completion of the install step. Repeat calls keep
// the first timestamp.
func (r *Repository) MarkOnboarded(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE accounts SET onboarded_at = COALESCE(onboarded_at, $2), updated_at = NOW() WHERE id = $1`
	return db.ExpectOne(r.db.ExecContext(ctx, query, id, at))
}

// CompleteSetup stamps setup completion and starts the trial, once
func (r *Repository) CompleteSetup(ctx context.Context, id uuid.UUID, at, trialEndsAt time.Time) error {
	query := `
		UPDATE accounts
		SET setup_completed_at = COALESCE(setup_completed_at, $2),
			trial_ends_at = COALESCE(trial_ends_at, $3),
			updated_at = NOW()
		WHERE id = $1
	`
	return db.ExpectOne(r.db.ExecContext(ctx, query, id, at, trialEndsAt))
}

// SetFlags replaces the account's feature flags
func (r *Repository) SetFlags(ctx context.Context, id uuid.UUID, flags []string) error {
	query := `UPDATE accounts SET feature_flags = $2, updated_at = NOW() WHERE id = $1`
	return db.ExpectOne(r.db.ExecContext(ctx, query, id, pq.Array(flags)))
}

// SetPreview toggles admin preview mode
func (r *Repository) SetPreview(ctx context.Context, id uuid.UUID, on bool) error {
	query := `UPDATE accounts SET preview_mode = $2, updated_at = NOW() WHERE id = $1`
	return db.ExpectOne(r.db.ExecContext(ctx, query, id, on))
}

// SetAffiliate toggles affiliate commission eligibility
func (r *Repository) SetAffiliate(ctx context.Context, id uuid.UUID, on bool) error {
	query := `UPDATE accounts SET is_affiliate = $2, updated_at = NOW() WHERE id = $1`
	return db.ExpectOne(r.db.ExecContext(ctx, query, id, on))
}

// SetRole changes the account's role
func (r *Repository) SetRole(ctx context.Context, id uuid.UUID, role string) error {
	query := `UPDATE accounts SET role = $2, updated_at = NOW() WHERE id = $1`
	return db.ExpectOne(r.db.ExecContext(ctx, query, id, role))
}

// UpdateSubscription applies a billing-driven change. Empty strings leave
// the plan, subscription and customer ids untouched.
func (r *Repository) UpdateSubscription(ctx context.Context, id uuid.UUID, u SubscriptionUpdate) error {
	query := `
		UPDATE accounts
		SET subscription_status = $2,
			plan = COALESCE(NULLIF($3, ''), plan),
			subscription_id = COALESCE(NULLIF($4, ''), subscription_id),
			provider_customer_id = COALESCE(NULLIF($5, ''), provider_customer_id),
			past_due_since = $6,
			updated_at = NOW()
		WHERE id = $1
	`
	return db.ExpectOne(r.db.ExecContext(ctx, query, id, u.Status, u.Plan, u.SubscriptionID, u.CustomerID, u.PastDueSince))
}

// Flags returns the account's stored feature flags
func (r *Repository) Flags(ctx context.Context, id uuid.UUID) ([]string, error) {
	var flags []string
	err := r.db.QueryRowContext(ctx, `SELECT feature_flags FROM accounts WHERE id = $1`, id).Scan(pq.Array(&flags))
	if err != nil {
		return nil, db.ConvertError(err)
	}
	return flags, nil
}

// Snapshot loads the appstate resolution inputs for an account
func (r *Repository) Snapshot(ctx context.Context, id uuid.UUID) (appstate.Snapshot, error) {
	a, err := r.Get(ctx, id)
	if err != nil {
		return appstate.Snapshot{}, err
	}
	return a.Snapshot(), nil
}
