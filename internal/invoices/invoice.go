// Package invoices manages billable documents, their payments and the
// overdue lifecycle.
package invoices

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/calendar"
	"github.com/fieldledger/fieldledger/internal/documents"
	"github.com/fieldledger/fieldledger/internal/money"
	"github.com/fieldledger/fieldledger/internal/validation"
)

var (
	// ErrInvalidTransition is returned when a status change is not allowed
	ErrInvalidTransition = errors.New("invalid invoice status transition")
	// ErrNotEditable is returned when a non-draft invoice is edited
	ErrNotEditable = errors.New("only draft invoices can be edited")
	// ErrOverpayment is returned when a payment exceeds the balance due
	ErrOverpayment = errors.New("payment exceeds balance due")
)

// Status is an invoice lifecycle state
type Status string

// Invoice statuses
const (
	StatusDraft         Status = "draft"
	StatusSent          Status = "sent"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
	StatusOverdue       Status = "overdue"
	StatusVoid          Status = "void"
)

var transitions = map[Status][]Status{
	StatusDraft:         {StatusSent, StatusVoid},
	StatusSent:          {StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusVoid},
	StatusPartiallyPaid: {StatusPaid, StatusOverdue},
	StatusOverdue:       {StatusPartiallyPaid, StatusPaid, StatusVoid},
}

// CanTransition reports whether from may move to to
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusVoid:
		return true
	}
	return false
}

// AcceptsPayment reports whether payments may be recorded in this state
func (s Status) AcceptsPayment() bool {
	return s == StatusSent || s == StatusPartiallyPaid || s == StatusOverdue
}

// Invoice is a bill sent to a client
type Invoice struct {
	ID         uuid.UUID           `json:"id"`
	AccountID  uuid.UUID           `json:"-"`
	ClientID   uuid.UUID           `json:"client_id"`
	QuoteID    *uuid.UUID          `json:"quote_id,omitempty"`
	Number     string              `json:"number"`
	Status     Status              `json:"status"`
	LineItems  documents.LineItems `json:"line_items"`
	TaxBps     money.BasisPoints   `json:"tax_bps"`
	Discount   money.Cents         `json:"discount"`
	Subtotal   money.Cents         `json:"subtotal"`
	Tax        money.Cents         `json:"tax"`
	Total      money.Cents         `json:"total"`
	AmountPaid money.Cents         `json:"amount_paid"`
	IssueDate  calendar.Date       `json:"issue_date"`
	DueDate    calendar.Date       `json:"due_date"`
	Notes      string              `json:"notes"`
	PaidAt     *time.Time          `json:"paid_at,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// BalanceDue is what the client still owes
func (i *Invoice) BalanceDue() money.Cents {
	return money.Max(i.Total-i.AmountPaid, 0)
}

// DaysPastDue is zero until the due date has passed
func (i *Invoice) DaysPastDue(today calendar.Date) int {
	if !today.After(i.DueDate) {
		return 0
	}
	return today.DaysSince(i.DueDate)
}

func (i *Invoice) applyTotals() {
	t := documents.Compute(i.LineItems, i.Discount, i.TaxBps)
	i.Subtotal, i.Tax, i.Total = t.Subtotal, t.Tax, t.Total
}

// Payment is money received against an invoice
type Payment struct {
	ID        uuid.UUID   `json:"id"`
	InvoiceID uuid.UUID   `json:"invoice_id"`
	Amount    money.Cents `json:"amount"`
	Method    string      `json:"method"`
	Note      string      `json:"note"`
	PaidAt    time.Time   `json:"paid_at"`
}

// Input carries the editable fields of an invoice
type Input struct {
	ClientID  uuid.UUID           `json:"client_id"`
	LineItems documents.LineItems `json:"line_items"`
	TaxBps    money.BasisPoints   `json:"tax_bps"`
	Discount  money.Cents         `json:"discount"`
	IssueDate calendar.Date       `json:"issue_date"`
	DueDate   calendar.Date       `json:"due_date"`
	Notes     string              `json:"notes"`
}

// DefaultTerms is the payment window applied when no due date is given
const DefaultTerms = 30

func (in *Input) normalize(today calendar.Date) {
	documents.Normalize(in.LineItems)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.IssueDate.IsZero() {
		in.IssueDate = today
	}
	if in.DueDate.IsZero() {
		in.DueDate = in.IssueDate.AddDays(DefaultTerms)
	}
}

// Validate checks the input
func (in *Input) Validate() error {
	v := validation.New()
	v.Check(in.ClientID != uuid.Nil, "client_id", "is required")
	documents.Validate(v, in.LineItems, in.Discount, in.TaxBps)
	v.Check(!in.DueDate.Before(in.IssueDate), "due_date", "must not be before the issue date")
	v.MaxLength("notes", in.Notes, 5000)
	return v.Err()
}

// PaymentInput records a payment
type PaymentInput struct {
	Amount money.Cents `json:"amount"`
	Method string      `json:"method"`
	Note   string      `json:"note"`
	PaidAt *time.Time  `json:"paid_at,omitempty"`
}

// Validate checks the payment fields that do not depend on the invoice
func (in *PaymentInput) Validate() error {
	v := validation.New()
	v.Positive("amount", int64(in.Amount))
	v.MaxLength("method", in.Method, 50)
	v.MaxLength("note", in.Note, 1000)
	return v.Err()
}

// Filter narrows invoice listings
type Filter struct {
	Status   Status
	ClientID *uuid.UUID
	Limit    int
	Offset   int
}
