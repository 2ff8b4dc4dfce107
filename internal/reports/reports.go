// Package reports builds the financial summary: invoicing and collections,
// receivables aging, mileage deductions, referral rewards and quote
// conversion.
package reports

import (
	"math"

	"github.com/fieldledger/fieldledger/internal/calendar"
	"github.com/fieldledger/fieldledger/internal/money"
)

// MaxSpanDays bounds the period a summary may cover
const MaxSpanDays = 366

// Aging buckets outstanding balances by days past due
type Aging struct {
	Current    money.Cents `json:"current"`
	Days1To30  money.Cents `json:"days_1_30"`
	Days31To60 money.Cents `json:"days_31_60"`
	Days61To90 money.Cents `json:"days_61_90"`
	Over90     money.Cents `json:"over_90"`
}

// Add places amount in the bucket for daysPastDue. Not yet due counts as
// current.
func (a *Aging) Add(daysPastDue int, amount money.Cents) {
	switch {
	case daysPastDue <= 0:
		a.Current += amount
	case daysPastDue <= 30:
		a.Days1To30 += amount
	case daysPastDue <= 60:
		a.Days31To60 += amount
	case daysPastDue <= 90:
		a.Days61To90 += amount
	default:
		a.Over90 += amount
	}
}

// Total sums every bucket
func (a Aging) Total() money.Cents {
	return money.Sum(a.Current, a.Days1To30, a.Days31To60, a.Days61To90, a.Over90)
}

// OpenBalance is the unpaid part of an invoice
type OpenBalance struct {
	DueDate calendar.Date
	Balance money.Cents
}

// AgeBalances buckets open balances as of asOf
func AgeBalances(open []OpenBalance, asOf calendar.Date) Aging {
	var a Aging
	for _, b := range open {
		if b.Balance <= 0 {
			continue
		}
		a.Add(asOf.DaysSince(b.DueDate), b.Balance)
	}
	return a
}

// QuoteStats counts quotes created in the period by outcome
type QuoteStats struct {
	Created  int `json:"created"`
	Sent     int `json:"sent"`
	Won      int `json:"won"`
	Declined int `json:"declined"`
	Expired  int `json:"expired"`
	// ConversionRate is won over quotes that left draft, 0..1
	ConversionRate float64 `json:"conversion_rate"`
}

// NewQuoteStats derives the stats from per-status counts
func NewQuoteStats(byStatus map[string]int) QuoteStats {
	var s QuoteStats
	for status, n := range byStatus {
		s.Created += n
		switch status {
		case "accepted", "converted":
			s.Won += n
		case "declined":
			s.Declined += n
		case "expired":
			s.Expired += n
		}
		if status != "draft" {
			s.Sent += n
		}
	}
	if s.Sent > 0 {
		s.ConversionRate = math.Round(float64(s.Won)/float64(s.Sent)*10000) / 10000
	}
	return s
}

// Summary is the financial report for a period
type Summary struct {
	From             calendar.Date `json:"from"`
	To               calendar.Date `json:"to"`
	InvoiceCount     int           `json:"invoice_count"`
	Invoiced         money.Cents   `json:"invoiced"`
	Collected        money.Cents   `json:"collected"`
	Outstanding      money.Cents   `json:"outstanding"`
	Aging            Aging         `json:"aging"`
	MileageDeduction money.Cents   `json:"mileage_deduction"`
	ReferralRewards  money.Cents   `json:"referral_rewards"`
	Quotes           QuoteStats    `json:"quotes"`
}
