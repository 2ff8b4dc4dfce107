package mileage

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/calendar"
	"github.com/fieldledger/fieldledger/internal/clients"
	"github.com/fieldledger/fieldledger/internal/money"
	"github.com/fieldledger/fieldledger/internal/validation"
)

// ClientLookup confirms a client belongs to the account
type ClientLookup interface {
	Get(ctx context.Context, accountID, id uuid.UUID) (*clients.Client, error)
}

// Service implements trip logging and the pro reports
type Service struct {
	repo    *Repository
	clients ClientLookup
	rates   RateTable
}

// NewService creates the mileage service
func NewService(repo *Repository, clients ClientLookup, rates RateTable) *Service {
	return &Service{repo: repo, clients: clients, rates: rates}
}

// Rates exposes the configured rate table
func (s *Service) Rates() RateTable {
	return s.rates
}

// Log records a trip
func (s *Service) Log(ctx context.Context, accountID uuid.UUID, in Input) (*Trip, error) {
	t, err := in.Trip(accountID)
	if err != nil {
		return nil, err
	}
	if t.ClientID != nil {
		if _, err := s.clients.Get(ctx, accountID, *t.ClientID); err != nil {
			return nil, fmt.Errorf("client: %w", err)
		}
	}
	if err := s.repo.Insert(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get loads a trip
func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID) (*Trip, error) {
	return s.repo.Get(ctx, accountID, id)
}

// Delete removes a trip
func (s *Service) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	return s.repo.Delete(ctx, accountID, id)
}

// List returns a page of trips
func (s *Service) List(ctx context.Context, accountID uuid.UUID, f Filter) ([]*Trip, int, error) {
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		v := validation.New()
		v.Add("to", "must be after from")
		return nil, 0, v
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, accountID, f)
}

func validYear(year int) error {
	if year < 2000 || year > 2100 {
		v := validation.New()
		v.Add("year", "must be between 2000 and 2100")
		return v
	}
	return nil
}

// YearSummary totals a year's trips with a monthly breakdown
func (s *Service) YearSummary(ctx context.Context, accountID uuid.UUID, year int) (YearSummary, error) {
	if err := validYear(year); err != nil {
		return YearSummary{}, err
	}
	r := calendar.Year(year)
	trips, err := s.repo.InRange(ctx, accountID, r.From, r.To)
	if err != nil {
		return YearSummary{}, err
	}
	return Summarize(year, trips, s.rates), nil
}

// Deduction prices business miles driven in the range, each year at its own rate
func (s *Service) Deduction(ctx context.Context, accountID uuid.UUID, r calendar.Range) (money.Cents, error) {
	byYear, err := s.repo.BusinessTenthsByYear(ctx, accountID, r.From, r.To)
	if err != nil {
		return 0, err
	}
	var total money.Cents
	for year, tenths := range byYear {
		rate, _ := s.rates.Rate(year)
		total += Deduction(tenths, rate)
	}
	return total, nil
}

// ExportCSV writes the year's trip log to w
func (s *Service) ExportCSV(ctx context.Context, accountID uuid.UUID, year int, w io.Writer) error {
	if err := validYear(year); err != nil {
		return err
	}
	r := calendar.Year(year)
	trips, err := s.repo.InRange(ctx, accountID, r.From, r.To)
	if err != nil {
		return err
	}
	return WriteCSV(w, trips, s.rates)
}
