// Package documents holds what quotes and invoices share: priced line items,
// totals and per-account document numbering.
package documents

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/money"
	"github.com/fieldledger/fieldledger/internal/validation"
)

const (
	// MaxLineItems bounds the size of a single document
	MaxLineItems = 200

	// MaxQuantity bounds a single line's quantity
	MaxQuantity = 1e6

	// MaxUnitPrice bounds a single line's unit price ($100M)
	MaxUnitPrice money.Cents = 10_000_000_000

	// MaxSubtotal bounds the sum of a document's line totals ($10B)
	MaxSubtotal money.Cents = 1_000_000_000_000
)

// LineItem is one priced row on a quote or invoice
type LineItem struct {
	Description string      `json:"description"`
	Quantity    float64     `json:"quantity"`
	UnitPrice   money.Cents `json:"unit_price"`
	MaterialID  *uuid.UUID  `json:"material_id,omitempty"`
	Total       money.Cents `json:"total"`
}

// LineItems is stored as a JSONB array
type LineItems []LineItem

// Value implements driver.Valuer
func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to encode line items: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner
func (l *LineItems) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = LineItems{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into line items", src)
	}
	items := LineItems{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("failed to decode line items: %w", err)
	}
	*l = items
	return nil
}

// Totals are the computed money fields of a document
type Totals struct {
	Subtotal money.Cents `json:"subtotal"`
	Discount money.Cents `json:"discount"`
	Tax      money.Cents `json:"tax"`
	Total    money.Cents `json:"total"`
}

// Compute fills each line total and returns the document totals. The discount
// applies before tax and never drives the taxable amount below zero.
func Compute(items LineItems, discount money.Cents, taxBps money.BasisPoints) Totals {
	var subtotal money.Cents
	for i := range items {
		items[i].Total = money.LineTotal(items[i].Quantity, items[i].UnitPrice)
		subtotal += items[i].Total
	}
	taxable := money.Max(subtotal-discount, 0)
	tax := money.Percent(taxable, taxBps)
	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Total:    taxable + tax,
	}
}

// Normalize trims descriptions in place
func Normalize(items LineItems) {
	for i := range items {
		items[i].Description = strings.TrimSpace(items[i].Description)
	}
}

// Validate checks the line items and pricing inputs shared by quotes and invoices
func Validate(v *validation.Errors, items LineItems, discount money.Cents, taxBps money.BasisPoints) {
	if len(items) == 0 {
		v.Add("line_items", "must contain at least one item")
	}
	if len(items) > MaxLineItems {
		v.Add("line_items", fmt.Sprintf("must contain at most %d items", MaxLineItems))
	}
	var subtotal float64
	for i, item := range items {
		field := fmt.Sprintf("line_items[%d]", i)
		v.Required(field+".description", item.Description)
		v.MaxLength(field+".description", item.Description, 500)
		quantityOK := item.Quantity > 0 && item.Quantity <= MaxQuantity
		priceOK := item.UnitPrice >= 0 && item.UnitPrice <= MaxUnitPrice
		v.Check(item.Quantity > 0, field+".quantity", "must be greater than zero")
		v.Check(item.Quantity <= MaxQuantity, field+".quantity", fmt.Sprintf("must be at most %d", int64(MaxQuantity)))
		v.NonNegative(field+".unit_price", int64(item.UnitPrice))
		v.Check(item.UnitPrice <= MaxUnitPrice, field+".unit_price", "must be at most "+MaxUnitPrice.Format())
		if quantityOK && priceOK {
			subtotal += math.Round(item.Quantity * float64(item.UnitPrice))
		}
	}
	v.Check(subtotal <= float64(MaxSubtotal), "line_items", "subtotal exceeds "+MaxSubtotal.Format())
	v.NonNegative("discount", int64(discount))
	v.Check(discount <= MaxSubtotal, "discount", "must be at most "+MaxSubtotal.Format())
	v.Check(taxBps.Valid(), "tax_bps", "must be between 0 and 10000")
}
