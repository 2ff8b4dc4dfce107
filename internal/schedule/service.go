package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/clients"
	"github.com/fieldledger/fieldledger/internal/db/transaction"
	"github.com/fieldledger/fieldledger/internal/validation"
)

// MaxRange bounds a calendar listing
const MaxRange = 366 * 24 * time.Hour

// ClientLookup confirms a client belongs to the account
type ClientLookup interface {
	Get(ctx context.Context, accountID, id uuid.UUID) (*clients.Client, error)
}

// Service implements scheduling workflows
type Service struct {
	repo    *Repository
	txm     *transaction.Manager
	clients ClientLookup
}

// NewService creates the schedule service
func NewService(repo *Repository, txm *transaction.Manager, clients ClientLookup) *Service {
	return &Service{repo: repo, txm: txm, clients: clients}
}

func (s *Service) checkClient(ctx context.Context, accountID uuid.UUID, clientID *uuid.UUID) error {
	if clientID == nil {
		return nil
	}
	if _, err := s.clients.Get(ctx, accountID, *clientID); err != nil {
		return fmt.Errorf("client: %w", err)
	}
	return nil
}

// Create books an appointment if the slot is free
func (s *Service) Create(ctx context.Context, accountID uuid.UUID, in Input) (*Appointment, error) {
	in.normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkClient(ctx, accountID, in.ClientID); err != nil {
		return nil, err
	}

	a := &Appointment{
		AccountID: accountID,
		ClientID:  in.ClientID,
		Title:     in.Title,
		Location:  in.Location,
		Notes:     in.Notes,
		Status:    StatusScheduled,
		StartsAt:  in.StartsAt,
		EndsAt:    in.EndsAt,
	}
	err := s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		if err := s.ensureFree(ctx, repo, a); err != nil {
			return err
		}
		return repo.Insert(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) ensureFree(ctx context.Context, repo *Repository, a *Appointment) error {
	if err := repo.LockAccount(ctx, a.AccountID); err != nil {
		return err
	}
	var exclude *uuid.UUID
	if a.ID != uuid.Nil {
		exclude = &a.ID
	}
	conflicts, err := repo.Conflicts(ctx, a.AccountID, a.StartsAt, a.EndsAt, exclude)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		c := conflicts[0]
		return fmt.Errorf("%w: %q %s-%s", ErrOverlap, c.Title, c.StartsAt.Format(time.RFC3339), c.EndsAt.Format(time.RFC3339))
	}
	return nil
}

// Get loads an appointment
func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID) (*Appointment, error) {
	return s.repo.Get(ctx, accountID, id)
}

// Reschedule replaces an appointment's details and time slot
func (s *Service) Reschedule(ctx context.Context, accountID, id uuid.UUID, in Input) (*Appointment, error) {
	in.normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkClient(ctx, accountID, in.ClientID); err != nil {
		return nil, err
	}

	var a *Appointment
	err := s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		var err error
		a, err = repo.Get(ctx, accountID, id)
		if err != nil {
			return err
		}
		a.ClientID, a.Title, a.Location, a.Notes = in.ClientID, in.Title, in.Location, in.Notes
		a.StartsAt, a.EndsAt = in.StartsAt, in.EndsAt
		if a.Status != StatusCancelled {
			if err := s.ensureFree(ctx, repo, a); err != nil {
				return err
			}
		}
		return repo.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SetStatus completes, cancels or reinstates an appointment. Reinstating a
// cancelled booking checks the slot again.
func (s *Service) SetStatus(ctx context.Context, accountID, id uuid.UUID, status Status) (*Appointment, error) {
	if !status.Valid() {
		v := validation.New()
		v.Add("status", "must be scheduled, completed or cancelled")
		return nil, v
	}

	var a *Appointment
	err := s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		var err error
		a, err = repo.Get(ctx, accountID, id)
		if err != nil {
			return err
		}
		if a.Status == StatusCancelled && status != StatusCancelled {
			if err := s.ensureFree(ctx, repo, a); err != nil {
				return err
			}
		}
		a.Status = status
		return repo.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Delete removes an appointment
func (s *Service) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	return s.repo.Delete(ctx, accountID, id)
}

// Range lists appointments intersecting [from, to)
func (s *Service) Range(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	v := validation.New()
	v.Check(to.After(from), "to", "must be after from")
	v.Check(to.Sub(from) <= MaxRange, "to", "range cannot exceed one year")
	if err := v.Err(); err != nil {
		return nil, err
	}
	return s.repo.Range(ctx, accountID, from.UTC(), to.UTC())
}
