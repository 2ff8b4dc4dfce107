package mileage

import (
	"sort"

	"github.com/fieldledger/fieldledger/internal/money"
)

// RateTable maps a tax year to its standard rate in hundredths of a cent per
// mile (2024: 6700 = 67.0 cents)
type RateTable map[int]int64

// Rate returns the rate for year. Years without an entry use the closest
// earlier year; ok is false when no earlier year exists.
func (t RateTable) Rate(year int) (rate int64, ok bool) {
	if r, found := t[year]; found {
		return r, true
	}
	best := 0
	for y := range t {
		if y < year && y > best {
			best = y
		}
	}
	if best == 0 {
		return 0, false
	}
	return t[best], true
}

// Years lists the configured years ascending
func (t RateTable) Years() []int {
	years := make([]int, 0, len(t))
	for y := range t {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Deduction prices a distance in tenths of a mile at rate, rounded half up
// to the cent
func Deduction(tenths, rate int64) money.Cents {
	if tenths <= 0 || rate <= 0 {
		return 0
	}
	return money.Cents((tenths*rate + 500) / 1000)
}
