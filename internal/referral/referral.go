// Package referral tracks who referred whom, issues one-time referral rewards
// as partial refunds, and keeps the affiliate commission ledger.
package referral

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/money"
)

var (
	// ErrSelfReferral is returned when an account tries to refer itself
	ErrSelfReferral = errors.New("an account cannot refer itself")
	// ErrBelowThreshold is returned when an approved balance is too small to pay out
	ErrBelowThreshold = errors.New("approved commission balance is below the payout threshold")
	// ErrRefundRejected marks a refund the provider will never accept
	ErrRefundRejected = errors.New("refund rejected")
)

// Status is the lifecycle state of a referral
type Status string

const (
	StatusSignedUp Status = "signed_up"
	// StatusPending means a reward is owed and the refund job has been queued
	StatusPending  Status = "pending"
	StatusRewarded Status = "rewarded"
	StatusFailed   Status = "failed"
	// StatusConverted means the referee bought but no reward was due
	StatusConverted Status = "converted"
)

// CommissionStatus is the state of an affiliate ledger entry
type CommissionStatus string

const (
	CommissionPending  CommissionStatus = "pending"
	CommissionApproved CommissionStatus = "approved"
	CommissionPaid     CommissionStatus = "paid"
)

// Referral links a referrer to the account that signed up with their code
type Referral struct {
	ID           uuid.UUID   `json:"id"`
	ReferrerID   uuid.UUID   `json:"referrer_id"`
	RefereeID    uuid.UUID   `json:"referee_id"`
	Code         string      `json:"code"`
	Status       Status      `json:"status"`
	SaleAmount   money.Cents `json:"sale_amount"`
	RewardAmount money.Cents `json:"reward_amount"`
	RefundID     string      `json:"refund_id,omitempty"`
	Failure      string      `json:"failure,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Commission is one affiliate ledger entry
type Commission struct {
	ID          uuid.UUID        `json:"id"`
	AffiliateID uuid.UUID        `json:"affiliate_id"`
	RefereeID   uuid.UUID        `json:"referee_id"`
	PurchaseID  uuid.UUID        `json:"purchase_id"`
	Amount      money.Cents      `json:"amount"`
	Status      CommissionStatus `json:"status"`
	AvailableAt time.Time        `json:"available_at"`
	PaidAt      *time.Time       `json:"paid_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// PaymentKind says what kind of provider object a purchase's PaymentID names
type PaymentKind string

// Payment kinds
const (
	PaymentIntent  PaymentKind = "payment_intent"
	PaymentCharge  PaymentKind = "charge"
	PaymentInvoice PaymentKind = "invoice"
)

// Purchase is a completed payment as recorded by billing
type Purchase struct {
	ID          uuid.UUID   `json:"id"`
	AccountID   uuid.UUID   `json:"account_id"`
	Product     string      `json:"product"`
	Amount      money.Cents `json:"amount"`
	PaymentKind PaymentKind `json:"payment_kind"`
	PaymentID   string      `json:"payment_id"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Policy holds the reward and commission parameters
type Policy struct {
	RewardBps       money.BasisPoints
	CapBps          money.BasisPoints
	CommissionBps   money.BasisPoints
	PayoutThreshold money.Cents
	HoldPeriod      time.Duration
}

// CalculateReward returns the referrer's reward for a referee sale: the
// reward rate applied to the sale, capped by the cap rate applied to the
// referrer's own original purchase.
func CalculateReward(sale, original money.Cents, rewardBps, capBps money.BasisPoints) money.Cents {
	if sale <= 0 || original <= 0 {
		return 0
	}
	return money.Min(money.Percent(sale, rewardBps), money.Percent(original, capBps))
}

// Balance summarizes an affiliate's commission ledger
type Balance struct {
	Pending  money.Cents `json:"pending"`
	Approved money.Cents `json:"approved"`
	Paid     money.Cents `json:"paid"`
}

// Stats is the referral dashboard summary for one account
type Stats struct {
	Code           string      `json:"code"`
	Total          int         `json:"total"`
	Converted      int         `json:"converted"`
	RewardsEarned  money.Cents `json:"rewards_earned"`
	RewardsPending money.Cents `json:"rewards_pending"`
	Commissions    *Balance    `json:"commissions,omitempty"`
}

// Payout is the result of paying an affiliate's approved balance
type Payout struct {
	Entries int         `json:"entries"`
	Amount  money.Cents `json:"amount"`
}
