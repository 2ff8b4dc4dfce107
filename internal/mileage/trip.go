// Package mileage logs business trips and prices them against the standard
// mileage rate for the trip's year.
package mileage

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/calendar"
	"github.com/fieldledger/fieldledger/internal/validation"
)

// Trip is one logged journey. Distances are stored in tenths of a mile.
type Trip struct {
	ID            uuid.UUID     `json:"id"`
	AccountID     uuid.UUID     `json:"-"`
	ClientID      *uuid.UUID    `json:"client_id,omitempty"`
	Date          calendar.Date `json:"date"`
	Purpose       string        `json:"purpose"`
	Vehicle       string        `json:"vehicle"`
	MilesTenths   int64         `json:"-"`
	OdometerStart *int64        `json:"-"`
	OdometerEnd   *int64        `json:"-"`
	Business      bool          `json:"business"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Miles returns the distance in miles
func (t *Trip) Miles() float64 {
	return TenthsToMiles(t.MilesTenths)
}

// TripView is the API representation with distances in miles
type TripView struct {
	*Trip
	Miles         float64  `json:"miles"`
	OdometerStart *float64 `json:"odometer_start,omitempty"`
	OdometerEnd   *float64 `json:"odometer_end,omitempty"`
}

// NewTripView converts tenths to miles for display
func NewTripView(t *Trip) TripView {
	v := TripView{Trip: t, Miles: t.Miles()}
	if t.OdometerStart != nil && t.OdometerEnd != nil {
		start, end := TenthsToMiles(*t.OdometerStart), TenthsToMiles(*t.OdometerEnd)
		v.OdometerStart, v.OdometerEnd = &start, &end
	}
	return v
}

// TenthsToMiles converts a stored distance to miles
func TenthsToMiles(tenths int64) float64 {
	return float64(tenths) / 10
}

// MilesToTenths rounds miles to the nearest tenth
func MilesToTenths(miles float64) int64 {
	return int64(math.Round(miles * 10))
}

// Input logs a trip. Give either Miles or both odometer readings; when the
// odometer is present the distance is derived from it.
type Input struct {
	Date          calendar.Date `json:"date"`
	Purpose       string        `json:"purpose"`
	Vehicle       string        `json:"vehicle"`
	Miles         *float64      `json:"miles"`
	OdometerStart *float64      `json:"odometer_start"`
	OdometerEnd   *float64      `json:"odometer_end"`
	Business      *bool         `json:"business"`
	ClientID      *uuid.UUID    `json:"client_id"`
}

func (in *Input) normalize() {
	in.Purpose = strings.TrimSpace(in.Purpose)
	in.Vehicle = strings.TrimSpace(in.Vehicle)
}

// Trip validates the input and builds the trip it describes
func (in *Input) Trip(accountID uuid.UUID) (*Trip, error) {
	in.normalize()
	v := validation.New()
	v.Check(!in.Date.IsZero(), "date", "is required")
	v.MaxLength("purpose", in.Purpose, 500)
	v.MaxLength("vehicle", in.Vehicle, 100)

	t := &Trip{
		AccountID: accountID,
		ClientID:  in.ClientID,
		Date:      in.Date,
		Purpose:   in.Purpose,
		Vehicle:   in.Vehicle,
		Business:  in.Business == nil || *in.Business,
	}

	switch {
	case in.OdometerStart != nil || in.OdometerEnd != nil:
		if in.OdometerStart == nil || in.OdometerEnd == nil {
			v.Add("odometer_end", "both odometer readings are required")
			break
		}
		start, end := MilesToTenths(*in.OdometerStart), MilesToTenths(*in.OdometerEnd)
		v.Check(start >= 0, "odometer_start", "must not be negative")
		v.Check(end > start, "odometer_end", "must be greater than odometer_start")
		t.OdometerStart, t.OdometerEnd = &start, &end
		t.MilesTenths = end - start
	case in.Miles != nil:
		t.MilesTenths = MilesToTenths(*in.Miles)
		v.Check(t.MilesTenths > 0, "miles", "must be at least 0.1")
	default:
		v.Add("miles", "either miles or odometer readings are required")
	}

	if err := v.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Filter narrows trip listings
type Filter struct {
	From   calendar.Date
	To     calendar.Date
	Limit  int
	Offset int
}
