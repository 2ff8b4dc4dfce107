// Package accounts manages signup, login, onboarding and business setup, and
// the admin controls over an account's flags and preview mode.
package accounts

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/money"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidReferral    = errors.New("referral code not recognised")
)

// Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account is a business using the application
type Account struct {
	ID                 uuid.UUID         `json:"id"`
	Email              string            `json:"email"`
	PasswordHash       string            `json:"-"`
	BusinessName       string            `json:"business_name"`
	Phone              string            `json:"phone"`
	Address            string            `json:"address"`
	DefaultTaxBps      money.BasisPoints `json:"default_tax_bps"`
	InvoicePrefix      string            `json:"invoice_prefix"`
	Role               string            `json:"role"`
	PreviewMode        bool              `json:"preview_mode"`
	FeatureFlags       []string          `json:"feature_flags"`
	IsAffiliate        bool              `json:"is_affiliate"`
	ReferralCode       string            `json:"referral_code"`
	ReferredBy         *uuid.UUID        `json:"referred_by,omitempty"`
	OnboardedAt        *time.Time        `json:"onboarded_at,omitempty"`
	SetupCompletedAt   *time.Time        `json:"setup_completed_at,omitempty"`
	TrialEndsAt        *time.Time        `json:"trial_ends_at,omitempty"`
	SubscriptionStatus string            `json:"subscription_status"`
	Plan               string            `json:"plan"`
	SubscriptionID     string            `json:"-"`
	ProviderCustomerID string            `json:"-"`
	PastDueSince       *time.Time        `json:"past_due_since,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// SetupComplete reports whether the business details needed to issue
// invoices are present
func (a *Account) SetupComplete() bool {
	return strings.TrimSpace(a.BusinessName) != "" &&
		strings.TrimSpace(a.Address) != "" &&
		strings.TrimSpace(a.InvoicePrefix) != ""
}

// Snapshot converts the account into appstate resolution inputs
func (a *Account) Snapshot() appstate.Snapshot {
	flags := a.FeatureFlags
	if flags == nil {
		flags = []string{}
	}
	return appstate.Snapshot{
		Onboarded:          a.OnboardedAt != nil,
		SetupComplete:      a.SetupCompletedAt != nil,
		SubscriptionStatus: a.SubscriptionStatus,
		PastDueSince:       a.PastDueSince,
		TrialEndsAt:        a.TrialEndsAt,
		Admin:              a.Role == RoleAdmin,
		Preview:            a.PreviewMode,
		Flags:              flags,
	}
}

// SubscriptionUpdate carries billing-driven changes to an account
type SubscriptionUpdate struct {
	Status         string
	Plan           string
	SubscriptionID string
	CustomerID     string
	PastDueSince   *time.Time
}

// NormalizeEmail lowercases and trims an address for lookup
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
