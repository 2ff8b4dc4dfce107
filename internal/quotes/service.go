package quotes

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/calendar"
	"github.com/fieldledger/fieldledger/internal/clients"
	"github.com/fieldledger/fieldledger/internal/db/transaction"
	"github.com/fieldledger/fieldledger/internal/documents"
	"github.com/fieldledger/fieldledger/internal/invoices"
	"github.com/fieldledger/fieldledger/internal/validation"
)

// ClientLookup confirms a client belongs to the account
type ClientLookup interface {
	Get(ctx context.Context, accountID, id uuid.UUID) (*clients.Client, error)
}

// InvoiceCreator creates the invoice for a converted quote in the caller's
// transaction
type InvoiceCreator interface {
	CreateTx(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, in invoices.Input, quoteID *uuid.UUID) (*invoices.Invoice, error)
}

// Service implements quote workflows
type Service struct {
	repo     *Repository
	txm      *transaction.Manager
	clients  ClientLookup
	invoices InvoiceCreator
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates the quote service
func NewService(repo *Repository, txm *transaction.Manager, clients ClientLookup, invoices InvoiceCreator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, txm: txm, clients: clients, invoices: invoices, logger: logger, now: time.Now}
}

func (s *Service) today() calendar.Date {
	return calendar.DateOf(s.now().UTC())
}

// Create drafts a new quote numbered Q-00001 onwards
func (s *Service) Create(ctx context.Context, accountID uuid.UUID, in Input) (*Quote, error) {
	in.normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.clients.Get(ctx, accountID, in.ClientID); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	q := &Quote{
		AccountID:  accountID,
		ClientID:   in.ClientID,
		Status:     StatusDraft,
		LineItems:  in.LineItems,
		TaxBps:     in.TaxBps,
		Discount:   in.Discount,
		ValidUntil: in.ValidUntil,
		Notes:      in.Notes,
	}
	q.applyTotals()

	err := s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		n, err := documents.NextNumber(ctx, tx, accountID, documents.KindQuote)
		if err != nil {
			return err
		}
		q.Number = documents.FormatNumber(documents.QuotePrefix, n)
		return s.repo.WithTx(tx).Insert(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Get loads a quote
func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID) (*Quote, error) {
	return s.repo.Get(ctx, accountID, id)
}

// List returns a page of quotes
func (s *Service) List(ctx context.Context, accountID uuid.UUID, f Filter) ([]*Quote, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		v := validation.New()
		v.Add("status", "is not a known quote status")
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

// Update replaces the contents of a draft quote
func (s *Service) Update(ctx context.Context, accountID, id uuid.UUID, in Input) (*Quote, error) {
	in.normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.clients.Get(ctx, accountID, in.ClientID); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	var q *Quote
	err := s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		var err error
		q, err = repo.GetForUpdate(ctx, accountID, id)
		if err != nil {
			return err
		}
		if q.Status != StatusDraft {
			return ErrNotEditable
		}
		q.ClientID, q.LineItems, q.TaxBps, q.Discount = in.ClientID, in.LineItems, in.TaxBps, in.Discount
		q.ValidUntil, q.Notes = in.ValidUntil, in.Notes
		q.applyTotals()
		return repo.Update(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Delete removes a draft quote
func (s *Service) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	return s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		q, err := repo.GetForUpdate(ctx, accountID, id)
		if err != nil {
			return err
		}
		if q.Status != StatusDraft {
			return ErrNotEditable
		}
		return repo.Delete(ctx, accountID, id)
	})
}

// Send marks a draft quote as sent
func (s *Service) Send(ctx context.Context, accountID, id uuid.UUID) (*Quote, error) {
	return s.transition(ctx, accountID, id, StatusSent)
}

// Accept records the client's acceptance. A quote past its validity date
// cannot be accepted.
func (s *Service) Accept(ctx context.Context, accountID, id uuid.UUID) (*Quote, error) {
	return s.transition(ctx, accountID, id, StatusAccepted)
}

// Decline records the client's refusal
func (s *Service) Decline(ctx context.Context, accountID, id uuid.UUID) (*Quote, error) {
	return s.transition(ctx, accountID, id, StatusDeclined)
}

// Expire closes a sent quote without a decision
func (s *Service) Expire(ctx context.Context, accountID, id uuid.UUID) (*Quote, error) {
	return s.transition(ctx, accountID, id, StatusExpired)
}

func (s *Service) transition(ctx context.Context, accountID, id uuid.UUID, to Status) (*Quote, error) {
	var q *Quote
	err := s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		var err error
		q, err = repo.GetForUpdate(ctx, accountID, id)
		if err != nil {
			return err
		}
		if !CanTransition(q.Status, to) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, q.Status, to)
		}
		if to == StatusAccepted && q.Expired(s.today()) {
			return fmt.Errorf("%w: quote expired on %s", ErrInvalidTransition, q.ValidUntil)
		}
		q.Status = to
		return repo.SetStatus(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Convert turns an accepted quote into a draft invoice carrying its line
// items. The quote becomes converted and links to the invoice.
func (s *Service) Convert(ctx context.Context, accountID, id uuid.UUID) (*Quote, *invoices.Invoice, error) {
	var (
		q   *Quote
		inv *invoices.Invoice
	)
	err := s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		var err error
		q, err = repo.GetForUpdate(ctx, accountID, id)
		if err != nil {
			return err
		}
		if !CanTransition(q.Status, StatusConverted) {
			return fmt.Errorf("%w: %s quote cannot be converted", ErrInvalidTransition, q.Status)
		}

		items := make(documents.LineItems, len(q.LineItems))
		copy(items, q.LineItems)
		inv, err = s.invoices.CreateTx(ctx, tx, accountID, invoices.Input{
			ClientID:  q.ClientID,
			LineItems: items,
			TaxBps:    q.TaxBps,
			Discount:  q.Discount,
			Notes:     q.Notes,
		}, &q.ID)
		if err != nil {
			return err
		}

		q.Status = StatusConverted
		q.InvoiceID = &inv.ID
		return repo.SetStatus(ctx, q)
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("quote converted",
		zap.String("account_id", accountID.String()),
		zap.String("quote", q.Number),
		zap.String("invoice", inv.Number))
	return q, inv, nil
}

// ExpireStale expires every sent quote whose validity date has passed
func (s *Service) ExpireStale(ctx context.Context, today calendar.Date) (int64, error) {
	return s.repo.ExpireStale(ctx, today)
}
