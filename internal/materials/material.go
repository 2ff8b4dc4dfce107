// Package materials keeps the account's catalog of parts and supplies with
// their cost, markup and stock on hand.
package materials

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/money"
	"github.com/fieldledger/fieldledger/internal/validation"
)

// ErrInsufficientStock is returned when an adjustment would take stock below zero
var ErrInsufficientStock = errors.New("insufficient stock")

// Material is a catalog item
type Material struct {
	ID            uuid.UUID         `json:"id"`
	AccountID     uuid.UUID         `json:"-"`
	Name          string            `json:"name"`
	SKU           string            `json:"sku"`
	Unit          string            `json:"unit"`
	UnitCost      money.Cents       `json:"unit_cost"`
	MarkupBps     money.BasisPoints `json:"markup_bps"`
	StockQuantity float64           `json:"stock_quantity"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// SellPrice is the unit cost plus markup
func (m *Material) SellPrice() money.Cents {
	return m.UnitCost + money.Percent(m.UnitCost, m.MarkupBps)
}

// View adds the derived sell price for API responses
type View struct {
	*Material
	SellPrice money.Cents `json:"sell_price"`
}

// NewView wraps m with its derived fields
func NewView(m *Material) View {
	return View{Material: m, SellPrice: m.SellPrice()}
}

// Input is the writable part of a material
type Input struct {
	Name          string            `json:"name"`
	SKU           string            `json:"sku"`
	Unit          string            `json:"unit"`
	UnitCost      money.Cents       `json:"unit_cost"`
	MarkupBps     money.BasisPoints `json:"markup_bps"`
	StockQuantity float64           `json:"stock_quantity"`
}

func (in *Input) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.SKU = strings.TrimSpace(in.SKU)
	in.Unit = strings.TrimSpace(in.Unit)
	if in.Unit == "" {
		in.Unit = "each"
	}
}

// Validate checks the input
func (in Input) Validate() error {
	v := validation.New()
	v.Required("name", in.Name)
	v.MaxLength("name", in.Name, 200)
	v.MaxLength("sku", in.SKU, 64)
	v.MaxLength("unit", in.Unit, 20)
	v.NonNegative("unit_cost", int64(in.UnitCost))
	v.NonNegative("markup_bps", int64(in.MarkupBps))
	v.Check(in.StockQuantity >= 0 && !math.IsNaN(in.StockQuantity) && !math.IsInf(in.StockQuantity, 0),
		"stock_quantity", "must not be negative")
	return v.Err()
}
