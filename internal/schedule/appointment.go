// Package schedule books appointments and keeps an account's calendar free of
// double bookings.
package schedule

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/validation"
)

// ErrOverlap is returned when an appointment collides with another booking
var ErrOverlap = errors.New("appointment overlaps an existing booking")

// Status is an appointment state
type Status string

// Appointment statuses
const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	return s == StatusScheduled || s == StatusCompleted || s == StatusCancelled
}

// MaxDuration bounds a single appointment
const MaxDuration = 7 * 24 * time.Hour

// Appointment is a booked block of time
type Appointment struct {
	ID        uuid.UUID  `json:"id"`
	AccountID uuid.UUID  `json:"-"`
	ClientID  *uuid.UUID `json:"client_id,omitempty"`
	Title     string     `json:"title"`
	Location  string     `json:"location"`
	Notes     string     `json:"notes"`
	Status    Status     `json:"status"`
	StartsAt  time.Time  `json:"starts_at"`
	EndsAt    time.Time  `json:"ends_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Overlaps reports whether two half-open intervals intersect
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Input carries the editable fields of an appointment
type Input struct {
	ClientID *uuid.UUID `json:"client_id"`
	Title    string     `json:"title"`
	Location string     `json:"location"`
	Notes    string     `json:"notes"`
	StartsAt time.Time  `json:"starts_at"`
	EndsAt   time.Time  `json:"ends_at"`
}

func (in *Input) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Location = strings.TrimSpace(in.Location)
	in.Notes = strings.TrimSpace(in.Notes)
	in.StartsAt = in.StartsAt.UTC()
	in.EndsAt = in.EndsAt.UTC()
}

// Validate checks the input
func (in *Input) Validate() error {
	v := validation.New()
	v.Required("title", in.Title)
	v.MaxLength("title", in.Title, 200)
	v.MaxLength("location", in.Location, 500)
	v.MaxLength("notes", in.Notes, 5000)
	v.Check(!in.StartsAt.IsZero(), "starts_at", "is required")
	v.Check(in.EndsAt.After(in.StartsAt), "ends_at", "must be after starts_at")
	v.Check(in.EndsAt.Sub(in.StartsAt) <= MaxDuration, "ends_at", "appointment cannot exceed 7 days")
	return v.Err()
}
