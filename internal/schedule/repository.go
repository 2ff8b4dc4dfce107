package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/db"
)

const appointmentColumns = `id, account_id, client_id, title, location, notes, status, starts_at, ends_at, created_at, updated_at`

// Repository persists appointments
type Repository struct {
	db db.DBTX
}

// NewRepository creates a repository over conn
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// WithTx returns a repository bound to tx
func (r *Repository) WithTx(tx db.DBTX) *Repository {
	return &Repository{db: tx}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAppointment(row rowScanner) (*Appointment, error) {
	a := &Appointment{}
	err := row.Scan(&a.ID, &a.AccountID, &a.ClientID, &a.Title, &a.Location, &a.Notes, &a.Status,
		&a.StartsAt, &a.EndsAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, db.ConvertError(err)
	}
	return a, nil
}

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	out := []*Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LockAccount serialises bookings for one account until the transaction ends
func (r *Repository) LockAccount(ctx context.Context, accountID uuid.UUID) error {
	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&id)
	return db.ConvertError(err)
}

// Insert stores a new appointment
func (r *Repository) Insert(ctx context.Context, a *Appointment) error {
	now := time.Now().UTC()
	a.ID = uuid.New()
	a.CreatedAt, a.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.AccountID, a.ClientID, a.Title, a.Location, a.Notes, a.Status, a.StartsAt, a.EndsAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", db.ConvertError(err))
	}
	return nil
}

// Get loads one appointment
func (r *Repository) Get(ctx context.Context, accountID, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE account_id = $1 AND id = $2`, accountID, id)
	return scanAppointment(row)
}

// Update writes every mutable field
func (r *Repository) Update(ctx context.Context, a *Appointment) error {
	a.UpdatedAt = time.Now().UTC()
	return db.ExpectOne(r.db.ExecContext(ctx, `
		UPDATE appointments
		SET client_id = $3, title = $4, location = $5, notes = $6, status = $7, starts_at = $8, ends_at = $9, updated_at = $10
		WHERE account_id = $1 AND id = $2
	`, a.AccountID, a.ID, a.ClientID, a.Title, a.Location, a.Notes, a.Status, a.StartsAt, a.EndsAt, a.UpdatedAt))
}

// Delete removes an appointment
func (r *Repository) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	return db.ExpectOne(r.db.ExecContext(ctx, `DELETE FROM appointments WHERE account_id = $1 AND id = $2`, accountID, id))
}

// Conflicts returns non-cancelled appointments intersecting [from, to),
// ignoring exclude when set
func (r *Repository) Conflicts(ctx context.Context, accountID uuid.UUID, from, to time.Time, exclude *uuid.UUID) ([]*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
		WHERE account_id = $1 AND status <> 'cancelled' AND starts_at < $3 AND ends_at > $2`
	args := []interface{}{accountID, from, to}
	if exclude != nil {
		query += ` AND id <> $4`
		args = append(args, *exclude)
	}
	query += ` ORDER BY starts_at`
	return r.query(ctx, query, args...)
}

// Range lists every appointment intersecting [from, to), cancelled included
func (r *Repository) Range(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	return r.query(ctx, `SELECT `+appointmentColumns+` FROM appointments
		WHERE account_id = $1 AND starts_at < $3 AND ends_at > $2
		ORDER BY starts_at, id`, accountID, from, to)
}
