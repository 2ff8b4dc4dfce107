// Package money provides integer currency arithmetic.
//
// Amounts are whole cents and rates are basis points, so nothing that is
// persisted ever passes through a float.
package money

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cents is an amount of money in the smallest currency unit
type Cents int64

// BasisPoints is a rate where 10000 equals 100%
type BasisPoints int

// FullRate is 100% expressed in basis points
const FullRate BasisPoints = 10000

// Valid reports whether the rate lies within [0, 100%]
func (b BasisPoints) Valid() bool {
	return b >= 0 && b <= FullRate
}

// String renders the rate as a percentage, e.g. "12.5%"
func (b BasisPoints) String() string {
	return strconv.FormatFloat(float64(b)/100, 'f', -1, 64) + "%"
}

// Percent returns bps of amount, rounding half away from zero. The amount is
// split on FullRate so only the remainder is scaled before division.
func Percent(amount Cents, bps BasisPoints) Cents {
	whole, rest := int64(amount)/int64(FullRate), int64(amount)%int64(FullRate)
	product := rest * int64(bps)
	if product >= 0 {
		product = (product + 5000) / 10000
	} else {
		product = (product - 5000) / 10000
	}
	return Cents(whole*int64(bps) + product)
}

// LineTotal multiplies a unit price by a fractional quantity, rounded to the cent
func LineTotal(quantity float64, unit Cents) Cents {
	return Cents(math.Round(quantity * float64(unit)))
}

// Min returns the smaller of two amounts
func Min(a, b Cents) Cents {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of two amounts
func Max(a, b Cents) Cents {
	if a > b {
		return a
	}
	return b
}

// Sum adds up a list of amounts
func Sum(amounts ...Cents) Cents {
	var total Cents
	for _, a := range amounts {
		total += a
	}
	return total
}

// Format renders the amount as dollars with thousands separators
func (c Cents) Format() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}

	whole := strconv.FormatInt(v/100, 10)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	return fmt.Sprintf("%s$%s.%02d", sign, b.String(), v%100)
}

// String implements fmt.Stringer
func (c Cents) String() string {
	return c.Format()
}
