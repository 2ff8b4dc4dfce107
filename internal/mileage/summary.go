package mileage

import (
	"time"

	"github.com/fieldledger/fieldledger/internal/money"
)

// MonthSummary totals one month of a year summary
type MonthSummary struct {
	Month         time.Month  `json:"month"`
	Trips         int         `json:"trips"`
	BusinessMiles float64     `json:"business_miles"`
	Deduction     money.Cents `json:"deduction"`
}

// YearSummary totals a tax year
type YearSummary struct {
	Year          int            `json:"year"`
	Trips         int            `json:"trips"`
	TotalMiles    float64        `json:"total_miles"`
	BusinessMiles float64        `json:"business_miles"`
	PersonalMiles float64        `json:"personal_miles"`
	Rate          int64          `json:"rate"`
	RateKnown     bool           `json:"rate_known"`
	Deduction     money.Cents    `json:"deduction"`
	Months        []MonthSummary `json:"months"`
}

// Summarize builds the year summary for trips dated in year. The deduction is
// priced on the year's business total so monthly rounding does not drift.
func Summarize(year int, trips []*Trip, rates RateTable) YearSummary {
	rate, known := rates.Rate(year)
	s := YearSummary{Year: year, Rate: rate, RateKnown: known, Months: make([]MonthSummary, 12)}

	monthTenths := make([]int64, 12)
	var total, business int64
	for i := range s.Months {
		s.Months[i].Month = time.Month(i + 1)
	}
	for _, t := range trips {
		if t.Date.Year() != year {
			continue
		}
		m := int(t.Date.Month()) - 1
		s.Trips++
		s.Months[m].Trips++
		total += t.MilesTenths
		if t.Business {
			business += t.MilesTenths
			monthTenths[m] += t.MilesTenths
		}
	}

	for i := range s.Months {
		s.Months[i].BusinessMiles = TenthsToMiles(monthTenths[i])
		s.Months[i].Deduction = Deduction(monthTenths[i], rate)
	}
	s.TotalMiles = TenthsToMiles(total)
	s.BusinessMiles = TenthsToMiles(business)
	s.PersonalMiles = TenthsToMiles(total - business)
	s.Deduction = Deduction(business, rate)
	return s
}
