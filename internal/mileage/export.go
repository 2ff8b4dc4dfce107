package mileage

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/fieldledger/fieldledger/internal/money"
)

var csvHeader = []string{"date", "purpose", "vehicle", "miles", "odometer_start", "odometer_end", "business", "rate", "deduction"}

// WriteCSV writes a trip log with per-trip deductions
func WriteCSV(w io.Writer, trips []*Trip, rates RateTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, t := range trips {
		rate, _ := rates.Rate(t.Date.Year())
		deduction := "0.00"
		if t.Business {
			deduction = formatCents(Deduction(t.MilesTenths, rate))
		} else {
			rate = 0
		}
		record := []string{
			t.Date.String(),
			t.Purpose,
			t.Vehicle,
			strconv.FormatFloat(t.Miles(), 'f', 1, 64),
			formatOdometer(t.OdometerStart),
			formatOdometer(t.OdometerEnd),
			strconv.FormatBool(t.Business),
			strconv.FormatFloat(float64(rate)/100, 'f', 2, 64),
			deduction,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatOdometer(tenths *int64) string {
	if tenths == nil {
		return ""
	}
	return strconv.FormatFloat(TenthsToMiles(*tenths), 'f', 1, 64)
}

func formatCents(c money.Cents) string {
	return fmt.Sprintf("%d.%02d", int64(c)/100, int64(c)%100)
}
