package appstate

import (
	"errors"
	"fmt"
)

// ErrQuotaExceeded is returned when a base-tier account hits a limit
var ErrQuotaExceeded = errors.New("quota exceeded")

// Quota names a metered resource
type Quota string

const (
	QuotaClients          Quota = "clients"
	QuotaInvoicesPerMonth Quota = "invoices_per_month"
)

// Limits are the base-tier ceilings
type Limits struct {
	Clients          int
	InvoicesPerMonth int
}

// DefaultLimits returns the standard base-tier limits
func DefaultLimits() Limits {
	return Limits{Clients: 10, InvoicesPerMonth: 5}
}

// Limit returns the ceiling for q in state. Only base is metered.
func (l Limits) Limit(state State, q Quota) (int, bool) {
	if state != Base {
		return 0, false
	}
	switch q {
	case QuotaClients:
		return l.Clients, true
	case QuotaInvoicesPerMonth:
		return l.InvoicesPerMonth, true
	default:
		return 0, false
	}
}

// Usage reports consumption of one quota
type Usage struct {
	Quota     Quota `json:"quota"`
	Used      int   `json:"used"`
	Limit     int   `json:"limit,omitempty"`
	Unlimited bool  `json:"unlimited"`
}

// UsageFor describes used against the limit for q in state
func (l Limits) UsageFor(state State, q Quota, used int) Usage {
	limit, limited := l.Limit(state, q)
	return Usage{Quota: q, Used: used, Limit: limit, Unlimited: !limited}
}

// CheckQuota fails when creating one more q would exceed the limit
func (l Limits) CheckQuota(state State, q Quota, used int) error {
	limit, limited := l.Limit(state, q)
	if !limited || used < limit {
		return nil
	}
	return fmt.Errorf("%w: %s limit of %d reached", ErrQuotaExceeded, q, limit)
}
