package invoices

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/calendar"
	"github.com/fieldledger/fieldledger/internal/clients"
	"github.com/fieldledger/fieldledger/internal/db/transaction"
	"github.com/fieldledger/fieldledger/internal/documents"
	"github.com/fieldledger/fieldledger/internal/validation"
)

// EventPaid is the realtime event sent when an invoice is fully paid
const EventPaid = "invoice.paid"

// QuotaChecker enforces base-tier limits
type QuotaChecker interface {
	CheckQuota(ctx context.Context, accountID uuid.UUID, q appstate.Quota, used int) error
}

// ClientLookup confirms a client belongs to the account
type ClientLookup interface {
	Get(ctx context.Context, accountID, id uuid.UUID) (*clients.Client, error)
}

// Notifier pushes realtime events to an account's open sessions
type Notifier interface {
	Notify(ctx context.Context, accountID uuid.UUID, event string, payload interface{})
}

// PaidEvent is the payload of EventPaid
type PaidEvent struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
	Number    string    `json:"number"`
	Total     int64     `json:"total"`
}

// Service implements invoice workflows
type Service struct {
	repo     *Repository
	txm      *transaction.Manager
	clients  ClientLookup
	quota    QuotaChecker
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates the invoice service. quota and notifier may be nil.
func NewService(repo *Repository, txm *transaction.Manager, clients ClientLookup, quota QuotaChecker, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		txm:      txm,
		clients:  clients,
		quota:    quota,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Create issues a new draft invoice
func (s *Service) Create(ctx context.Context, accountID uuid.UUID, in Input) (*Invoice, error) {
	var inv *Invoice
	err := s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		inv, err = s.CreateTx(ctx, tx, accountID, in, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// CreateTx creates a draft invoice inside an existing transaction. Quote
// conversion uses it so the invoice and the quote update commit together.
func (s *Service) CreateTx(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, in Input, quoteID *uuid.UUID) (*Invoice, error) {
	now := s.now().UTC()
	in.normalize(calendar.DateOf(now))
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.clients.Get(ctx, accountID, in.ClientID); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	repo := s.repo.WithTx(tx)
	if s.quota != nil {
		month := calendar.DateOf(now).MonthStart()
		used, err := repo.CountCreated(ctx, accountID, month.Time, month.Time.AddDate(0, 1, 0))
		if err != nil {
			return nil, err
		}
		if err := s.quota.CheckQuota(ctx, accountID, appstate.QuotaInvoicesPerMonth, used); err != nil {
			return nil, err
		}
	}

	prefix, err := repo.InvoicePrefix(ctx, accountID)
	if err != nil {
		return nil, err
	}
	n, err := documents.NextNumber(ctx, tx, accountID, documents.KindInvoice)
	if err != nil {
		return nil, err
	}

	inv := &Invoice{
		AccountID: accountID,
		ClientID:  in.ClientID,
		QuoteID:   quoteID,
		Number:    documents.FormatNumber(prefix, n),
		Status:    StatusDraft,
		LineItems: in.LineItems,
		TaxBps:    in.TaxBps,
		Discount:  in.Discount,
		IssueDate: in.IssueDate,
		DueDate:   in.DueDate,
		Notes:     in.Notes,
	}
	inv.applyTotals()
	if err := repo.Insert(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Get loads an invoice
func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID) (*Invoice, error) {
	return s.repo.Get(ctx, accountID, id)
}

// List returns a page of invoices
func (s *Service) List(ctx context.Context, accountID uuid.UUID, f Filter) ([]*Invoice, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		v := validation.New()
		v.Add("status", "is not a known invoice status")
		return nil, 0, v
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, accountID, f)
}

// Update replaces the contents of a draft invoice
func (s *Service) Update(ctx context.Context, accountID, id uuid.UUID, in Input) (*Invoice, error) {
	in.normalize(calendar.DateOf(s.now().UTC()))
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.clients.Get(ctx, accountID, in.ClientID); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	var inv *Invoice
	err := s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		var err error
		inv, err = repo.GetForUpdate(ctx, accountID, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return ErrNotEditable
		}
		inv.ClientID, inv.LineItems, inv.TaxBps, inv.Discount = in.ClientID, in.LineItems, in.TaxBps, in.Discount
		inv.IssueDate, inv.DueDate, inv.Notes = in.IssueDate, in.DueDate, in.Notes
		inv.applyTotals()
		return repo.Update(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Delete removes a draft invoice
func (s *Service) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	return s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		inv, err := repo.GetForUpdate(ctx, accountID, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return ErrNotEditable
		}
		return repo.Delete(ctx, accountID, id)
	})
}

// Send marks a draft invoice as sent to the client
func (s *Service) Send(ctx context.Context, accountID, id uuid.UUID) (*Invoice, error) {
	return s.transition(ctx, accountID, id, StatusSent)
}

// Void cancels a draft, sent or overdue invoice. Payments already recorded
// stay in the payments list.
func (s *Service) Void(ctx context.Context, accountID, id uuid.UUID) (*Invoice, error) {
	return s.transition(ctx, accountID, id, StatusVoid)
}

func (s *Service) transition(ctx context.Context, accountID, id uuid.UUID, to Status) (*Invoice, error) {
	var inv *Invoice
	err := s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		var err error
		inv, err = repo.GetForUpdate(ctx, accountID, id)
		if err != nil {
			return err
		}
		if !CanTransition(inv.Status, to) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, inv.Status, to)
		}
		inv.Status = to
		return repo.SetStatus(ctx, accountID, id, to)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// RecordPayment applies a payment and moves the invoice to partially_paid or
// paid. A fully paid invoice emits EventPaid.
func (s *Service) RecordPayment(ctx context.Context, accountID, id uuid.UUID, in PaymentInput) (*Invoice, *Payment, error) {
	in.Method = strings.TrimSpace(in.Method)
	in.Note = strings.TrimSpace(in.Note)
	if err := in.Validate(); err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	paidAt := now
	if in.PaidAt != nil {
		paidAt = in.PaidAt.UTC()
	}

	var (
		inv *Invoice
		pay *Payment
	)
	err := s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		var err error
		inv, err = repo.GetForUpdate(ctx, accountID, id)
		if err != nil {
			return err
		}
		if !inv.Status.AcceptsPayment() {
			return fmt.Errorf("%w: cannot record payment on %s invoice", ErrInvalidTransition, inv.Status)
		}
		if in.Amount > inv.BalanceDue() {
			return fmt.Errorf("%w: balance is %s", ErrOverpayment, inv.BalanceDue().Format())
		}

		pay = &Payment{InvoiceID: inv.ID, Amount: in.Amount, Method: in.Method, Note: in.Note, PaidAt: paidAt}
		if err := repo.InsertPayment(ctx, pay); err != nil {
			return err
		}

		inv.AmountPaid += in.Amount
		if inv.BalanceDue() == 0 {
			inv.Status = StatusPaid
			inv.PaidAt = &paidAt
		} else {
			inv.Status = StatusPartiallyPaid
		}
		return repo.ApplyPayment(ctx, inv)
	})
	if err != nil {
		return nil, nil, err
	}

	if inv.Status == StatusPaid {
		s.logger.Info("invoice paid",
			zap.String("account_id", accountID.String()),
			zap.String("invoice", inv.Number))
		if s.notifier != nil {
			s.notifier.Notify(ctx, accountID, EventPaid, PaidEvent{InvoiceID: inv.ID, Number: inv.Number, Total: int64(inv.Total)})
		}
	}
	return inv, pay, nil
}

// Payments lists the payments recorded on an invoice
func (s *Service) Payments(ctx context.Context, accountID, id uuid.UUID) ([]*Payment, error) {
	if _, err := s.repo.Get(ctx, accountID, id); err != nil {
		return nil, err
	}
	return s.repo.Payments(ctx, accountID, id)
}

// SweepOverdue marks every unpaid invoice due before today as overdue and
// returns how many moved
func (s *Service) SweepOverdue(ctx context.Context, today calendar.Date) (int, error) {
	moved, err := s.repo.MarkOverdue(ctx, today)
	if err != nil {
		return 0, err
	}
	for _, o := range moved {
		s.logger.Info("invoice overdue",
			zap.String("account_id", o.AccountID.String()),
			zap.String("invoice", o.Number))
	}
	return len(moved), nil
}

// CountThisMonth reports invoices created in the current calendar month
func (s *Service) CountThisMonth(ctx context.Context, accountID uuid.UUID) (int, error) {
	month := calendar.DateOf(s.now().UTC()).MonthStart()
	return s.repo.CountCreated(ctx, accountID, month.Time, month.Time.AddDate(0, 1, 0))
}
