// Package quotes manages estimates sent to clients and their conversion into
// invoices.
package quotes

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
	ErrInvalidTransition = errors.New("invalid quote status transition")
	// ErrNotEditable is returned when a non-draft quote is edited
	ErrNotEditable = errors.New("only draft quotes can be edited")
)

// Status is a quote lifecycle state
type Status string

// Quote statuses
const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusExpired   Status = "expired"
	StatusConverted Status = "converted"
)

var transitions = map[Status][]Status{
	StatusDraft:    {StatusSent},
	StatusSent:     {StatusAccepted, StatusDeclined, StatusExpired},
	StatusAccepted: {StatusConverted},
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
	case StatusDraft, StatusSent, StatusAccepted, StatusDeclined, StatusExpired, StatusConverted:
		return true
	}
	return false
}

// Quote is an estimate offered to a client
type Quote struct {
	ID         uuid.UUID           `json:"id"`
	AccountID  uuid.UUID           `json:"-"`
	ClientID   uuid.UUID           `json:"client_id"`
	Number     string              `json:"number"`
	Status     Status              `json:"status"`
	LineItems  documents.LineItems `json:"line_items"`
	TaxBps     money.BasisPoints   `json:"tax_bps"`
	Discount   money.Cents         `json:"discount"`
	Subtotal   money.Cents         `json:"subtotal"`
	Tax        money.Cents         `json:"tax"`
	Total      money.Cents         `json:"total"`
	ValidUntil calendar.Date       `json:"valid_until"`
	Notes      string              `json:"notes"`
	InvoiceID  *uuid.UUID          `json:"invoice_id,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

func (q *Quote) applyTotals() {
	t := documents.Compute(q.LineItems, q.Discount, q.TaxBps)
	q.Subtotal, q.Tax, q.Total = t.Subtotal, t.Tax, t.Total
}

// Expired reports whether the validity window has closed
func (q *Quote) Expired(today calendar.Date) bool {
	return !q.ValidUntil.IsZero() && today.After(q.ValidUntil)
}

// Input carries the editable fields of a quote
type Input struct {
	ClientID   uuid.UUID           `json:"client_id"`
	LineItems  documents.LineItems `json:"line_items"`
	TaxBps     money.BasisPoints   `json:"tax_bps"`
	Discount   money.Cents         `json:"discount"`
	ValidUntil calendar.Date       `json:"valid_until"`
	Notes      string              `json:"notes"`
}

func (in *Input) normalize() {
	documents.Normalize(in.LineItems)
	in.Notes = strings.TrimSpace(in.Notes)
}

// Validate checks the input
func (in *Input) Validate() error {
	v := validation.New()
	v.Check(in.ClientID != uuid.Nil, "client_id", "is required")
	documents.Validate(v, in.LineItems, in.Discount, in.TaxBps)
	v.MaxLength("notes", in.Notes, 5000)
	return v.Err()
}

// Filter narrows quote listings
type Filter struct {
	Status   Status
	ClientID *uuid.UUID
	Limit    int
	Offset   int
}
