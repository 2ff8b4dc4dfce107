package reports

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/calendar"
	"github.com/fieldledger/fieldledger/internal/money"
	"github.com/fieldledger/fieldledger/internal/validation"
)

// DeductionSource computes the mileage deduction over a range
type DeductionSource interface {
	Deduction(ctx context.Context, accountID uuid.UUID, r calendar.Range) (money.Cents, error)
}

// RewardSource sums referral rewards issued over a range
type RewardSource interface {
	RewardsEarned(ctx context.Context, accountID uuid.UUID, r calendar.Range) (money.Cents, error)
}

// Service builds financial summaries
type Service struct {
	repo      *Repository
	mileage   DeductionSource
	referrals RewardSource
	logger    *zap.Logger
	today     func() calendar.Date
}

// NewService creates the reports service
func NewService(repo *Repository, mileage DeductionSource, referrals RewardSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, mileage: mileage, referrals: referrals, logger: logger, today: calendar.Today}
}

// Summary reports on [r.From, r.To). Outstanding and aging reflect today.
func (s *Service) Summary(ctx context.Context, accountID uuid.UUID, r calendar.Range) (*Summary, error) {
	v := validation.New()
	v.Check(r.Valid(), "to", "must be after from")
	v.Check(!r.Valid() || r.To.DaysSince(r.From) <= MaxSpanDays, "to", "range may cover at most 366 days")
	if err := v.Err(); err != nil {
		return nil, err
	}

	sum := &Summary{From: r.From, To: r.To}
	var err error

	if sum.Invoiced, sum.InvoiceCount, err = s.repo.Invoiced(ctx, accountID, r); err != nil {
		return nil, err
	}
	if sum.Collected, err = s.repo.Collected(ctx, accountID, r); err != nil {
		return nil, err
	}

	open, err := s.repo.OpenBalances(ctx, accountID)
	if err != nil {
		return nil, err
	}
	sum.Aging = AgeBalances(open, s.today())
	sum.Outstanding = sum.Aging.Total()

	counts, err := s.repo.QuoteCounts(ctx, accountID, r.From.Time, r.To.Time)
	if err != nil {
		return nil, err
	}
	sum.Quotes = NewQuoteStats(counts)

	if sum.MileageDeduction, err = s.mileage.Deduction(ctx, accountID, r); err != nil {
		return nil, err
	}
	if sum.ReferralRewards, err = s.referrals.RewardsEarned(ctx, accountID, r); err != nil {
		return nil, err
	}

	s.logger.Debug("financial summary built",
		zap.String("account_id", accountID.String()),
		zap.Stringer("from", r.From),
		zap.Stringer("to", r.To))
	return sum, nil
}
