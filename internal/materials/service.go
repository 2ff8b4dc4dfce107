package materials

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/validation"
)

// Service implements catalog workflows
type Service struct {
	repo *Repository
}

// NewService creates the materials service
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Create adds a catalog item
func (s *Service) Create(ctx context.Context, accountID uuid.UUID, in Input) (*Material, error) {
	in.normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	m := &Material{
		AccountID:     accountID,
		Name:          in.Name,
		SKU:           in.SKU,
		Unit:          in.Unit,
		UnitCost:      in.UnitCost,
		MarkupBps:     in.MarkupBps,
		StockQuantity: in.StockQuantity,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Get loads a catalog item
func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID) (*Material, error) {
	return s.repo.Get(ctx, accountID, id)
}

// Update changes pricing and description. Stock moves only through AdjustStock.
func (s *Service) Update(ctx context.Context, accountID, id uuid.UUID, in Input) (*Material, error) {
	in.normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	m, err := s.repo.Get(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	m.Name, m.SKU, m.Unit, m.UnitCost, m.MarkupBps = in.Name, in.SKU, in.Unit, in.UnitCost, in.MarkupBps
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Delete removes a catalog item
func (s *Service) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	return s.repo.Delete(ctx, accountID, id)
}

// List returns the catalog
func (s *Service) List(ctx context.Context, accountID uuid.UUID, search string) ([]*Material, error) {
	return s.repo.List(ctx, accountID, search)
}

// AdjustStock receives (positive delta) or consumes (negative delta) stock
func (s *Service) AdjustStock(ctx context.Context, accountID, id uuid.UUID, delta float64) (float64, error) {
	if delta == 0 || math.IsNaN(delta) || math.IsInf(delta, 0) {
		v := validation.New()
		v.Add("delta", "must be a non-zero number")
		return 0, v
	}
	return s.repo.AdjustStock(ctx, accountID, id, delta)
}
