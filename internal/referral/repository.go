package referral

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/db"
	"github.com/fieldledger/fieldledger/internal/money"
)

const referralColumns = `id, referrer_id, referee_id, code, status, sale_amount, reward_amount, refund_id, failure, created_at, updated_at`

const commissionColumns = `id, affiliate_id, referee_id, purchase_id, amount, status, available_at, paid_at, created_at`

// Repository persists referrals and commissions. It reads the accounts and
// purchases tables directly rather than going through their packages.
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

func scanReferral(row rowScanner) (*Referral, error) {
	ref := &Referral{}
	err := row.Scan(&ref.ID, &ref.ReferrerID, &ref.RefereeID, &ref.Code, &ref.Status,
		&ref.SaleAmount, &ref.RewardAmount, &ref.RefundID, &ref.Failure, &ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		return nil, db.ConvertError(err)
	}
	return ref, nil
}

func scanCommission(row rowScanner) (*Commission, error) {
	c := &Commission{}
	err := row.Scan(&c.ID, &c.AffiliateID, &c.RefereeID, &c.PurchaseID, &c.Amount, &c.Status,
		&c.AvailableAt, &c.PaidAt, &c.CreatedAt)
	if err != nil {
		return nil, db.ConvertError(err)
	}
	return c, nil
}

// Insert stores a new referral
func (r *Repository) Insert(ctx context.Context, ref *Referral) error {
	now := time.Now().UTC()
	ref.ID = uuid.New()
	ref.CreatedAt, ref.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO referrals (`+referralColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, ref.ID, ref.ReferrerID, ref.RefereeID, ref.Code, ref.Status,
		ref.SaleAmount, ref.RewardAmount, ref.RefundID, ref.Failure, ref.CreatedAt, ref.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create referral: %w", db.ConvertError(err))
	}
	return nil
}

// Get loads a referral by id
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return scanReferral(r.db.QueryRowContext(ctx,
		`SELECT `+referralColumns+` FROM referrals WHERE id = $1`, id))
}

// GetByRefereeForUpdate locks the referral that brought refereeID in
func (r *Repository) GetByRefereeForUpdate(ctx context.Context, refereeID uuid.UUID) (*Referral, error) {
	return scanReferral(r.db.QueryRowContext(ctx,
		`SELECT `+referralColumns+` FROM referrals WHERE referee_id = $1 FOR UPDATE`, refereeID))
}

// Update writes the reward fields and status
func (r *Repository) Update(ctx context.Context, ref *Referral) error {
	ref.UpdatedAt = time.Now().UTC()
	return db.ExpectOne(r.db.ExecContext(ctx, `
		UPDATE referrals
		SET status = $2, sale_amount = $3, reward_amount = $4, refund_id = $5, failure = $6, updated_at = $7
		WHERE id = $1
	`, ref.ID, ref.Status, ref.SaleAmount, ref.RewardAmount, ref.RefundID, ref.Failure, ref.UpdatedAt))
}

// Resolve moves a pending referral to its final state. It returns
// db.ErrNotFound if the referral is no longer pending.
func (r *Repository) Resolve(ctx context.Context, id uuid.UUID, status Status, refundID, failure string) error {
	return db.ExpectOne(r.db.ExecContext(ctx, `
		UPDATE referrals
		SET status = $2, refund_id = $3, failure = $4, updated_at = $5
		WHERE id = $1 AND status = 'pending'
	`, id, status, refundID, failure, time.Now().UTC()))
}

// ListByReferrer returns every referral made by referrerID, newest first
func (r *Repository) ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]*Referral, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+referralColumns+` FROM referrals WHERE referrer_id = $1 ORDER BY created_at DESC`, referrerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}
	defer rows.Close()

	var out []*Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// CountPurchases returns how many purchases accountID has made
func (r *Repository) CountPurchases(ctx context.Context, accountID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM purchases WHERE account_id = $1`, accountID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count purchases: %w", err)
	}
	return n, nil
}

// OriginalPurchase returns the earliest purchase made by accountID
func (r *Repository) OriginalPurchase(ctx context.Context, accountID uuid.UUID) (*Purchase, error) {
	p := &Purchase{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, product, amount, payment_kind, payment_id, created_at
		FROM purchases
		WHERE account_id = $1
		ORDER BY created_at ASC
		LIMIT 1
	`, accountID).Scan(&p.ID, &p.AccountID, &p.Product, &p.Amount, &p.PaymentKind, &p.PaymentID, &p.CreatedAt)
	if err != nil {
		return nil, db.ConvertError(err)
	}
	return p, nil
}

// AffiliateFor returns the account that referred accountID when that
// account is an affiliate
func (r *Repository) AffiliateFor(ctx context.Context, accountID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, `
		SELECT ref.id
		FROM accounts a
		JOIN accounts ref ON ref.id = a.referred_by
		WHERE a.id = $1 AND ref.is_affiliate
	`, accountID).Scan(&id)
	if err != nil {
		return uuid.Nil, db.ConvertError(err)
	}
	return id, nil
}

// ReferralCode returns the code accountID shares with others
func (r *Repository) ReferralCode(ctx context.Context, accountID uuid.UUID) (string, error) {
	var code string
	err := r.db.QueryRowContext(ctx, `SELECT referral_code FROM accounts WHERE id = $1`, accountID).Scan(&code)
	if err != nil {
		return "", db.ConvertError(err)
	}
	return code, nil
}

// InsertCommission stores a ledger entry. A purchase earns at most one.
func (r *Repository) InsertCommission(ctx context.Context, c *Commission) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO commissions (`+commissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (purchase_id) DO NOTHING
	`, c.ID, c.AffiliateID, c.RefereeID, c.PurchaseID, c.Amount, c.Status, c.AvailableAt, c.PaidAt, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create commission: %w", db.ConvertError(err))
	}
	return nil
}

// ApproveDue approves pending commissions whose hold period has passed
func (r *Repository) ApproveDue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE commissions SET status = 'approved'
		WHERE status = 'pending' AND available_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to approve commissions: %w", err)
	}
	return res.RowsAffected()
}

// Commissions lists an affiliate's ledger, newest first
func (r *Repository) Commissions(ctx context.Context, affiliateID uuid.UUID) ([]*Commission, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+commissionColumns+` FROM commissions WHERE affiliate_id = $1 ORDER BY created_at DESC`, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list commissions: %w", err)
	}
	defer rows.Close()

	var out []*Commission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Balance sums an affiliate's ledger by status
func (r *Repository) Balance(ctx context.Context, affiliateID uuid.UUID) (*Balance, error) {
	b := &Balance{}
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE status = 'pending'), 0),
			COALESCE(SUM(amount) FILTER (WHERE status = 'approved'), 0),
			COALESCE(SUM(amount) FILTER (WHERE status = 'paid'), 0)
		FROM commissions
		WHERE affiliate_id = $1
	`, affiliateID).Scan(&b.Pending, &b.Approved, &b.Paid)
	if err != nil {
		return nil, fmt.Errorf("failed to sum commissions: %w", err)
	}
	return b, nil
}

// MarkPaid marks every approved entry for affiliateID as paid
func (r *Repository) MarkPaid(ctx context.Context, affiliateID uuid.UUID, paidAt time.Time) (*Payout, error) {
	p := &Payout{}
	err := r.db.QueryRowContext(ctx, `
		WITH paid AS (
			UPDATE commissions SET status = 'paid', paid_at = $2
			WHERE affiliate_id = $1 AND status = 'approved'
			RETURNING amount
		)
		SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM paid
	`, affiliateID, paidAt).Scan(&p.Entries, &p.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to mark commissions paid: %w", err)
	}
	return p, nil
}

// Stats aggregates the referrals made by referrerID
func (r *Repository) Stats(ctx context.Context, referrerID uuid.UUID) (*Stats, error) {
	s := &Stats{}
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status <> 'signed_up'),
			COALESCE(SUM(reward_amount) FILTER (WHERE status = 'rewarded'), 0),
			COALESCE(SUM(reward_amount) FILTER (WHERE status = 'pending'), 0)
		FROM referrals
		WHERE referrer_id = $1
	`, referrerID).Scan(&s.Total, &s.Converted, &s.RewardsEarned, &s.RewardsPending)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate referrals: %w", err)
	}
	return s, nil
}

// RewardsEarned sums rewards issued to referrerID in [from, to)
func (r *Repository) RewardsEarned(ctx context.Context, referrerID uuid.UUID, from, to time.Time) (money.Cents, error) {
	var total money.Cents
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(reward_amount), 0)
		FROM referrals
		WHERE referrer_id = $1 AND status = 'rewarded' AND updated_at >= $2 AND updated_at < $3
	`, referrerID, from, to).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum rewards: %w", err)
	}
	return total, nil
}
