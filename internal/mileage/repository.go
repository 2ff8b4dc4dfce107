package mileage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/calendar"
	"github.com/fieldledger/fieldledger/internal/db"
)

const tripColumns = `id, account_id, client_id, trip_date, purpose, vehicle, miles_tenths, odometer_start, odometer_end, business, created_at`

// Repository persists trips
type Repository struct {
	db db.DBTX
}

// NewRepository creates a repository over conn
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrip(row rowScanner) (*Trip, error) {
	t := &Trip{}
	err := row.Scan(&t.ID, &t.AccountID, &t.ClientID, &t.Date, &t.Purpose, &t.Vehicle, &t.MilesTenths,
		&t.OdometerStart, &t.OdometerEnd, &t.Business, &t.CreatedAt)
	if err != nil {
		return nil, db.ConvertError(err)
	}
	return t, nil
}

// Insert stores a trip
func (r *Repository) Insert(ctx context.Context, t *Trip) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trips (`+tripColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, t.ID, t.AccountID, t.ClientID, t.Date, t.Purpose, t.Vehicle, t.MilesTenths, t.OdometerStart, t.OdometerEnd, t.Business, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log trip: %w", db.ConvertError(err))
	}
	return nil
}

// Get loads one trip
func (r *Repository) Get(ctx context.Context, accountID, id uuid.UUID) (*Trip, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE account_id = $1 AND id = $2`, accountID, id)
	return scanTrip(row)
}

// Delete removes a trip
func (r *Repository) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	return db.ExpectOne(r.db.ExecContext(ctx, `DELETE FROM trips WHERE account_id = $1 AND id = $2`, accountID, id))
}

func filterClause(accountID uuid.UUID, from, to calendar.Date) (string, []interface{}) {
	where := []string{"account_id = $1"}
	args := []interface{}{accountID}
	if !from.IsZero() {
		args = append(args, from)
		where = append(where, fmt.Sprintf("trip_date >= $%d", len(args)))
	}
	if !to.IsZero() {
		args = append(args, to)
		where = append(where, fmt.Sprintf("trip_date < $%d", len(args)))
	}
	return strings.Join(where, " AND "), args
}

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) ([]*Trip, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	defer rows.Close()

	out := []*Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// List returns a page of trips newest first and the total match count
func (r *Repository) List(ctx context.Context, accountID uuid.UUID, f Filter) ([]*Trip, int, error) {
	clause, args := filterClause(accountID, f.From, f.To)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trips WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count trips: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM trips WHERE %s ORDER BY trip_date DESC, created_at DESC LIMIT $%d OFFSET $%d`,
		tripColumns, clause, len(args)-1, len(args))
	trips, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return trips, total, nil
}

// InRange returns every trip dated in [from, to) oldest first
func (r *Repository) InRange(ctx context.Context, accountID uuid.UUID, from, to calendar.Date) ([]*Trip, error) {
	clause, args := filterClause(accountID, from, to)
	return r.query(ctx, `SELECT `+tripColumns+` FROM trips WHERE `+clause+` ORDER BY trip_date, created_at`, args...)
}

// BusinessTenthsByYear sums business distance per calendar year in [from, to)
func (r *Repository) BusinessTenthsByYear(ctx context.Context, accountID uuid.UUID, from, to calendar.Date) (map[int]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT EXTRACT(YEAR FROM trip_date)::int AS year, COALESCE(SUM(miles_tenths), 0)
		FROM trips
		WHERE account_id = $1 AND business AND trip_date >= $2 AND trip_date < $3
		GROUP BY 1
	`, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to sum trips: %w", err)
	}
	defer rows.Close()

	out := map[int]int64{}
	for rows.Next() {
		var (
			year   int
			tenths int64
		)
		if err := rows.Scan(&year, &tenths); err != nil {
			return nil, err
		}
		out[year] = tenths
	}
	return out, rows.Err()
}
