package referral

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/calendar"
	"github.com/fieldledger/fieldledger/internal/db"
	"github.com/fieldledger/fieldledger/internal/db/transaction"
	"github.com/fieldledger/fieldledger/internal/metrics"
	"github.com/fieldledger/fieldledger/internal/money"
)

// Job types handled by this package
const (
	JobIssueReward        = "referral.issue_reward"
	JobApproveCommissions = "referral.approve_commissions"
)

// Dispatcher enqueues background jobs inside a transaction
type Dispatcher interface {
	DispatchTx(ctx context.Context, tx db.DBTX, jobType string, payload map[string]interface{}) (uuid.UUID, error)
}

// Refunder issues a partial refund against an earlier payment. Repeating a
// call with the same idempotency key must not refund twice. Errors wrapping
// ErrRefundRejected are not retried.
type Refunder interface {
	Refund(ctx context.Context, kind PaymentKind, paymentID string, amount money.Cents, idempotencyKey string) (string, error)
}

// Service implements referral rewards and affiliate commissions
type Service struct {
	repo       *Repository
	txm        *transaction.Manager
	dispatcher Dispatcher
	refunder   Refunder
	policy     Policy
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates the referral service
func NewService(repo *Repository, txm *transaction.Manager, dispatcher Dispatcher, refunder Refunder, policy Policy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		txm:        txm,
		dispatcher: dispatcher,
		refunder:   refunder,
		policy:     policy,
		logger:     logger,
		now:        time.Now,
	}
}

// LinkSignup records that refereeID signed up with referrerID's code. It
// runs inside the signup transaction.
func (s *Service) LinkSignup(ctx context.Context, q db.DBTX, referrerID, refereeID uuid.UUID, code string) error {
	if referrerID == refereeID {
		return ErrSelfReferral
	}
	return s.repo.WithTx(q).Insert(ctx, &Referral{
		ReferrerID: referrerID,
		RefereeID:  refereeID,
		Code:       code,
		Status:     StatusSignedUp,
	})
}

// OnPurchase applies referral rewards and affiliate commissions for a
// purchase that billing has already recorded in tx.
func (s *Service) OnPurchase(ctx context.Context, tx db.DBTX, p Purchase) error {
	repo := s.repo.WithTx(tx)

	if err := s.rewardReferrer(ctx, tx, repo, p); err != nil {
		return err
	}
	return s.creditAffiliate(ctx, repo, p)
}

func (s *Service) rewardReferrer(ctx context.Context, tx db.DBTX, repo *Repository, p Purchase) error {
	ref, err := repo.GetByRefereeForUpdate(ctx, p.AccountID)
	if db.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lock referral: %w", err)
	}
	if ref.Status != StatusSignedUp {
		return nil
	}

	n, err := repo.CountPurchases(ctx, p.AccountID)
	if err != nil {
		return err
	}
	ref.SaleAmount = p.Amount
	ref.Status = StatusConverted

	if n == 1 {
		original, err := repo.OriginalPurchase(ctx, ref.ReferrerID)
		if err != nil && !db.IsNotFound(err) {
			return fmt.Errorf("load referrer purchase: %w", err)
		}
		if original != nil {
			ref.RewardAmount = CalculateReward(p.Amount, original.Amount, s.policy.RewardBps, s.policy.CapBps)
		}
	}
	if ref.RewardAmount > 0 {
		ref.Status = StatusPending
	}

	if err := repo.Update(ctx, ref); err != nil {
		return fmt.Errorf("update referral: %w", err)
	}

	if ref.Status == StatusPending {
		if _, err := s.dispatcher.DispatchTx(ctx, tx, JobIssueReward, map[string]interface{}{
			"referral_id": ref.ID.String(),
		}); err != nil {
			return fmt.Errorf("queue referral reward: %w", err)
		}
	}

	s.logger.Info("referral converted",
		zap.String("referral_id", ref.ID.String()),
		zap.String("referrer_id", ref.ReferrerID.String()),
		zap.String("status", string(ref.Status)),
		zap.Int64("reward", int64(ref.RewardAmount)))
	return nil
}

func (s *Service) creditAffiliate(ctx context.Context, repo *Repository, p Purchase) error {
	affiliateID, err := repo.AffiliateFor(ctx, p.AccountID)
	if db.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup affiliate: %w", err)
	}

	amount := money.Percent(p.Amount, s.policy.CommissionBps)
	if amount <= 0 {
		return nil
	}
	c := &Commission{
		AffiliateID: affiliateID,
		RefereeID:   p.AccountID,
		PurchaseID:  p.ID,
		Amount:      amount,
		Status:      CommissionPending,
		AvailableAt: s.now().UTC().Add(s.policy.HoldPeriod),
	}
	if err := repo.InsertCommission(ctx, c); err != nil {
		return err
	}
	s.logger.Info("affiliate commission recorded",
		zap.String("affiliate_id", affiliateID.String()),
		zap.String("purchase_id", p.ID.String()),
		zap.Int64("amount", int64(amount)))
	return nil
}

// IdempotencyKey is the refund key for a referral reward
func IdempotencyKey(referralID uuid.UUID) string {
	return "referral-reward-" + referralID.String()
}

// IssueReward refunds a pending reward to the referrer's original payment.
// It is safe to repeat: settled referrals are skipped and the refund carries
// a stable idempotency key. A refund error is returned for retry unless final
// is set or the provider rejected the refund, in which case the referral is
// marked failed.
func (s *Service) IssueReward(ctx context.Context, referralID uuid.UUID, final bool) error {
	ref, err := s.repo.Get(ctx, referralID)
	if err != nil {
		return fmt.Errorf("load referral %s: %w", referralID, err)
	}
	if ref.Status != StatusPending {
		return nil
	}

	log := s.logger.With(
		zap.String("referral_id", ref.ID.String()),
		zap.String("referrer_id", ref.ReferrerID.String()),
		zap.Int64("reward", int64(ref.RewardAmount)))

	original, err := s.repo.OriginalPurchase(ctx, ref.ReferrerID)
	if err != nil {
		return s.rewardFailed(ctx, log, ref, fmt.Errorf("load referrer purchase: %w", err), final)
	}

	refundID, err := s.refunder.Refund(ctx, original.PaymentKind, original.PaymentID, ref.RewardAmount, IdempotencyKey(ref.ID))
	if err != nil {
		return s.rewardFailed(ctx, log, ref, err, final || errors.Is(err, ErrRefundRejected))
	}

	if err := s.repo.Resolve(ctx, ref.ID, StatusRewarded, refundID, ""); err != nil && !db.IsNotFound(err) {
		return fmt.Errorf("record reward: %w", err)
	}
	metrics.RecordReward("issued")
	log.Info("referral reward issued", zap.String("refund_id", refundID))
	return nil
}

func (s *Service) rewardFailed(ctx context.Context, log *zap.Logger, ref *Referral, cause error, final bool) error {
	if !final {
		metrics.RecordReward("retry")
		log.Warn("referral reward attempt failed", zap.Error(cause))
		return cause
	}
	if err := s.repo.Resolve(ctx, ref.ID, StatusFailed, "", cause.Error()); err != nil && !db.IsNotFound(err) {
		log.Error("failed to record reward failure", zap.Error(err))
	}
	metrics.RecordReward("failed")
	log.Error("referral reward failed", zap.Error(cause))
	return cause
}

// ApproveCommissions approves commissions whose hold period has passed
func (s *Service) ApproveCommissions(ctx context.Context) (int64, error) {
	n, err := s.repo.ApproveDue(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("commissions approved", zap.Int64("count", n))
	}
	return n, nil
}

// PayoutCommissions marks an affiliate's approved balance as paid. The
// balance must reach the payout threshold.
func (s *Service) PayoutCommissions(ctx context.Context, affiliateID uuid.UUID) (*Payout, error) {
	var payout *Payout
	err := s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		b, err := repo.Balance(ctx, affiliateID)
		if err != nil {
			return err
		}
		if b.Approved <= 0 || b.Approved < s.policy.PayoutThreshold {
			return ErrBelowThreshold
		}
		payout, err = repo.MarkPaid(ctx, affiliateID, s.now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("commissions paid out",
		zap.String("affiliate_id", affiliateID.String()),
		zap.Int("entries", payout.Entries),
		zap.Int64("amount", int64(payout.Amount)))
	return payout, nil
}

// Stats returns the referral summary for an account. Affiliates also get
// their commission balance.
func (s *Service) Stats(ctx context.Context, accountID uuid.UUID, affiliate bool) (*Stats, error) {
	st, err := s.repo.Stats(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if st.Code, err = s.repo.ReferralCode(ctx, accountID); err != nil {
		return nil, err
	}
	if affiliate {
		if st.Commissions, err = s.repo.Balance(ctx, accountID); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// List returns the referrals made by an account
func (s *Service) List(ctx context.Context, accountID uuid.UUID) ([]*Referral, error) {
	return s.repo.ListByReferrer(ctx, accountID)
}

// Commissions returns an affiliate's ledger
func (s *Service) Commissions(ctx context.Context, affiliateID uuid.UUID) ([]*Commission, error) {
	return s.repo.Commissions(ctx, affiliateID)
}

// RewardsEarned sums rewards issued to an account within r
func (s *Service) RewardsEarned(ctx context.Context, accountID uuid.UUID, r calendar.Range) (money.Cents, error) {
	return s.repo.RewardsEarned(ctx, accountID, r.From.Time, r.To.Time)
}
