package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/accounts"
	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/billing"
	"github.com/fieldledger/fieldledger/internal/calendar"
	"github.com/fieldledger/fieldledger/internal/clients"
	"github.com/fieldledger/fieldledger/internal/invoices"
	"github.com/fieldledger/fieldledger/internal/materials"
	"github.com/fieldledger/fieldledger/internal/mileage"
	"github.com/fieldledger/fieldledger/internal/quotes"
	"github.com/fieldledger/fieldledger/internal/referral"
	"github.com/fieldledger/fieldledger/internal/reports"
	"github.com/fieldledger/fieldledger/internal/schedule"
)

// AccountService covers signup, login, settings and the admin console
type AccountService interface {
	Signup(ctx context.Context, in accounts.SignupInput) (*accounts.Session, error)
	Login(ctx context.Context, email, password string) (*accounts.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*accounts.Account, error)
	CompleteOnboarding(ctx context.Context, id uuid.UUID) (*accounts.Account, error)
	UpdateSetup(ctx context.Context, id uuid.UUID, in accounts.SetupInput) (*accounts.Account, error)
	List(ctx context.Context, limit, offset int) ([]*accounts.Account, int, error)
	SetFeatureFlag(ctx context.Context, id uuid.UUID, flag string, on bool) (*accounts.Account, error)
	SetPreview(ctx context.Context, id uuid.UUID, on bool) (*accounts.Account, error)
	SetAffiliate(ctx context.Context, id uuid.UUID, on bool) (*accounts.Account, error)
}

// StateService resolves app state and gates features
type StateService interface {
	View(ctx context.Context, accountID uuid.UUID, used map[appstate.Quota]int) (appstate.View, error)
	Navigate(ctx context.Context, accountID uuid.UUID, path string) (appstate.Decision, error)
	RequireFeature(feature appstate.Feature) func(http.Handler) http.Handler
}

// FlagEvaluator reports feature flags through the flag provider
type FlagEvaluator interface {
	EnabledFlags(ctx context.Context, accountID uuid.UUID) []string
}

// ClientService manages customer records
type ClientService interface {
	Create(ctx context.Context, accountID uuid.UUID, in clients.Input) (*clients.Client, error)
	Get(ctx context.Context, accountID, id uuid.UUID) (*clients.Client, error)
	Update(ctx context.Context, accountID, id uuid.UUID, in clients.Input) (*clients.Client, error)
	Archive(ctx context.Context, accountID, id uuid.UUID) error
	Restore(ctx context.Context, accountID, id uuid.UUID) error
	Delete(ctx context.Context, accountID, id uuid.UUID) error
	List(ctx context.Context, accountID uuid.UUID, f clients.Filter) ([]*clients.Client, int, error)
	CountActive(ctx context.Context, accountID uuid.UUID) (int, error)
}

// MaterialService manages the materials catalog
type MaterialService interface {
	Create(ctx context.Context, accountID uuid.UUID, in materials.Input) (*materials.Material, error)
	Get(ctx context.Context, accountID, id uuid.UUID) (*materials.Material, error)
	Update(ctx context.Context, accountID, id uuid.UUID, in materials.Input) (*materials.Material, error)
	Delete(ctx context.Context, accountID, id uuid.UUID) error
	List(ctx context.Context, accountID uuid.UUID, search string) ([]*materials.Material, error)
	AdjustStock(ctx context.Context, accountID, id uuid.UUID, delta float64) (float64, error)
}

// QuoteService manages quotes and their conversion
type QuoteService interface {
	Create(ctx context.Context, accountID uuid.UUID, in quotes.Input) (*quotes.Quote, error)
	Get(ctx context.Context, accountID, id uuid.UUID) (*quotes.Quote, error)
	List(ctx context.Context, accountID uuid.UUID, f quotes.Filter) ([]*quotes.Quote, int, error)
	Update(ctx context.Context, accountID, id uuid.UUID, in quotes.Input) (*quotes.Quote, error)
	Delete(ctx context.Context, accountID, id uuid.UUID) error
	Send(ctx context.Context, accountID, id uuid.UUID) (*quotes.Quote, error)
	Accept(ctx context.Context, accountID, id uuid.UUID) (*quotes.Quote, error)
	Decline(ctx context.Context, accountID, id uuid.UUID) (*quotes.Quote, error)
	Expire(ctx context.Context, accountID, id uuid.UUID) (*quotes.Quote, error)
	Convert(ctx context.Context, accountID, id uuid.UUID) (*quotes.Quote, *invoices.Invoice, error)
}

// InvoiceService manages invoices and payments
type InvoiceService interface {
	Create(ctx context.Context, accountID uuid.UUID, in invoices.Input) (*invoices.Invoice, error)
	Get(ctx context.Context, accountID, id uuid.UUID) (*invoices.Invoice, error)
	List(ctx context.Context, accountID uuid.UUID, f invoices.Filter) ([]*invoices.Invoice, int, error)
	Update(ctx context.Context, accountID, id uuid.UUID, in invoices.Input) (*invoices.Invoice, error)
	Delete(ctx context.Context, accountID, id uuid.UUID) error
	Send(ctx context.Context, accountID, id uuid.UUID) (*invoices.Invoice, error)
	Void(ctx context.Context, accountID, id uuid.UUID) (*invoices.Invoice, error)
	RecordPayment(ctx context.Context, accountID, id uuid.UUID, in invoices.PaymentInput) (*invoices.Invoice, *invoices.Payment, error)
	Payments(ctx context.Context, accountID, id uuid.UUID) ([]*invoices.Payment, error)
	CountThisMonth(ctx context.Context, accountID uuid.UUID) (int, error)
}

// ScheduleService manages appointments
type ScheduleService interface {
	Create(ctx context.Context, accountID uuid.UUID, in schedule.Input) (*schedule.Appointment, error)
	Get(ctx context.Context, accountID, id uuid.UUID) (*schedule.Appointment, error)
	Reschedule(ctx context.Context, accountID, id uuid.UUID, in schedule.Input) (*schedule.Appointment, error)
	SetStatus(ctx context.Context, accountID, id uuid.UUID, status schedule.Status) (*schedule.Appointment, error)
	Delete(ctx context.Context, accountID, id uuid.UUID) error
	Range(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]*schedule.Appointment, error)
}

// MileageService logs trips and computes deductions
type MileageService interface {
	Rates() mileage.RateTable
	Log(ctx context.Context, accountID uuid.UUID, in mileage.Input) (*mileage.Trip, error)
	Get(ctx context.Context, accountID, id uuid.UUID) (*mileage.Trip, error)
	Delete(ctx context.Context, accountID, id uuid.UUID) error
	List(ctx context.Context, accountID uuid.UUID, f mileage.Filter) ([]*mileage.Trip, int, error)
	YearSummary(ctx context.Context, accountID uuid.UUID, year int) (mileage.YearSummary, error)
	ExportCSV(ctx context.Context, accountID uuid.UUID, year int, w io.Writer) error
}

// ReportService builds financial summaries
type ReportService interface {
	Summary(ctx context.Context, accountID uuid.UUID, r calendar.Range) (*reports.Summary, error)
}

// ReferralService reports referrals and pays affiliates
type ReferralService interface {
	Stats(ctx context.Context, accountID uuid.UUID, affiliate bool) (*referral.Stats, error)
	List(ctx context.Context, accountID uuid.UUID) ([]*referral.Referral, error)
	Commissions(ctx context.Context, affiliateID uuid.UUID) ([]*referral.Commission, error)
	PayoutCommissions(ctx context.Context, affiliateID uuid.UUID) (*referral.Payout, error)
}

// BillingService sells plans and add-ons
type BillingService interface {
	Offers() []billing.Offer
	Purchases(ctx context.Context, accountID uuid.UUID) ([]*billing.Purchase, error)
	Checkout(ctx context.Context, accountID uuid.UUID, product string) (*billing.CheckoutSession, error)
	HandleWebhook(ctx context.Context, signature string, payload []byte) error
}

// Pinger reports whether a backing store is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}
