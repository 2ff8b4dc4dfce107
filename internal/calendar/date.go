// Package calendar provides a date-only value for due dates, trip dates and
// report periods.
package calendar

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Layout is the wire and storage format of a Date
const Layout = "2006-01-02"

// Date is a calendar day in UTC
type Date struct {
	time.Time
}

// NewDate returns the date for year, month, day
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// Today returns the current UTC date
func Today() Date {
	return DateOf(time.Now().UTC())
}

// Parse parses a YYYY-MM-DD string
func Parse(s string) (Date, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Date{t}, nil
}

// String formats the date as YYYY-MM-DD
func (d Date) String() string {
	return d.Format(Layout)
}

// AddDays returns the date n days later
func (d Date) AddDays(n int) Date {
	return Date{d.Time.AddDate(0, 0, n)}
}

// Before reports whether d is strictly before o
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

// After reports whether d is strictly after o
func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}

// DaysSince returns the whole days from o to d
func (d Date) DaysSince(o Date) int {
	return int(d.Time.Sub(o.Time).Hours() / 24)
}

// MarshalJSON encodes the date as "YYYY-MM-DD"
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes "YYYY-MM-DD" or null
func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

// Scan implements sql.Scanner for DATE columns
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	default:
		return fmt.Errorf("cannot scan %T into calendar.Date", src)
	}
}

func (d *Date) scanString(s string) error {
	if len(s) > len(Layout) {
		s = s[:len(Layout)]
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MonthStart returns the first day of d's month
func (d Date) MonthStart() Date {
	return NewDate(d.Year(), d.Month(), 1)
}

// Range is a half-open interval of dates [From, To)
type Range struct {
	From Date `json:"from"`
	To   Date `json:"to"`
}

// Year returns the range covering a calendar year
func Year(year int) Range {
	return Range{From: NewDate(year, time.January, 1), To: NewDate(year+1, time.January, 1)}
}

// Month returns the range covering a calendar month
func Month(year int, month time.Month) Range {
	start := NewDate(year, month, 1)
	return Range{From: start, To: Date{start.Time.AddDate(0, 1, 0)}}
}

// Contains reports whether d falls in the range
func (r Range) Contains(d Date) bool {
	return !d.Before(r.From) && d.Before(r.To)
}

// Valid reports whether the range is non-empty
func (r Range) Valid() bool {
	return r.From.Before(r.To)
}
