package clients

import (
	"context"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/appstate"
)

// QuotaChecker enforces base-tier limits
type QuotaChecker interface {
	CheckQuota(ctx context.Context, accountID uuid.UUID, q appstate.Quota, used int) error
}

// Service implements client workflows
type Service struct {
	repo  *Repository
	quota QuotaChecker
}

// NewService creates the client service
func NewService(repo *Repository, quota QuotaChecker) *Service {
	return &Service{repo: repo, quota: quota}
}

// Create adds a client, enforcing the active-client quota
func (s *Service) Create(ctx context.Context, accountID uuid.UUID, in Input) (*Client, error) {
	in.normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx, accountID); err != nil {
		return nil, err
	}

	c := &Client{
		AccountID: accountID,
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		Address:   in.Address,
		Notes:     in.Notes,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) checkQuota(ctx context.Context, accountID uuid.UUID) error {
	if s.quota == nil {
		return nil
	}
	used, err := s.repo.CountActive(ctx, accountID)
	if err != nil {
		return err
	}
	return s.quota.CheckQuota(ctx, accountID, appstate.QuotaClients, used)
}

// Get loads a client
func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID) (*Client, error) {
	return s.repo.Get(ctx, accountID, id)
}

// Update replaces a client's editable fields
func (s *Service) Update(ctx context.Context, accountID, id uuid.UUID, in Input) (*Client, error) {
	in.normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	c, err := s.repo.Get(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	c.Name, c.Email, c.Phone, c.Address, c.Notes = in.Name, in.Email, in.Phone, in.Address, in.Notes
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Archive hides a client and frees its quota slot
func (s *Service) Archive(ctx context.Context, accountID, id uuid.UUID) error {
	return s.repo.SetArchived(ctx, accountID, id, true)
}

// Restore brings an archived client back, subject to the quota
func (s *Service) Restore(ctx context.Context, accountID, id uuid.UUID) error {
	if err := s.checkQuota(ctx, accountID); err != nil {
		return err
	}
	return s.repo.SetArchived(ctx, accountID, id, false)
}

// Delete removes a client with no quotes or invoices
func (s *Service) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	return s.repo.Delete(ctx, accountID, id)
}

// List searches clients
func (s *Service) List(ctx context.Context, accountID uuid.UUID, f Filter) ([]*Client, int, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, accountID, f)
}

// CountActive reports quota usage
func (s *Service) CountActive(ctx context.Context, accountID uuid.UUID) (int, error) {
	return s.repo.CountActive(ctx, accountID)
}
