// Package billing sells plans and add-ons through the payments provider and
// applies the provider's webhook events to accounts.
package billing

import (
	"fmt"
	"sort"

	"github.com/fieldledger/fieldledger/internal/features"
	"github.com/fieldledger/fieldledger/internal/money"
)

// Product is something an account can buy
type Product string

const (
	ProductMonthly      Product = "monthly"
	ProductAnnual       Product = "annual"
	ProductMileagePro   Product = "mileage_pro"
	ProductFinancialPro Product = "financial_pro"
)

var products = []Product{ProductMonthly, ProductAnnual, ProductMileagePro, ProductFinancialPro}

// ParseProduct validates a product name
func ParseProduct(s string) (Product, error) {
	for _, p := range products {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown product %q", s)
}

// IsPlan reports whether p is a subscription plan rather than an add-on
func (p Product) IsPlan() bool {
	return p == ProductMonthly || p == ProductAnnual
}

// Interval is the recurring interval for plans, empty for add-ons
func (p Product) Interval() string {
	switch p {
	case ProductMonthly:
		return "month"
	case ProductAnnual:
		return "year"
	default:
		return ""
	}
}

// Flag is the feature flag an add-on turns on
func (p Product) Flag() string {
	switch p {
	case ProductMileagePro:
		return features.MileagePro
	case ProductFinancialPro:
		return features.FinancialPro
	default:
		return ""
	}
}

// Offer is a purchasable product with its price
type Offer struct {
	Product  Product     `json:"product"`
	Price    money.Cents `json:"price"`
	Plan     bool        `json:"plan"`
	Interval string      `json:"interval,omitempty"`
}

// Catalog maps products to prices
type Catalog map[Product]money.Cents

// NewCatalog builds a catalog from configured prices. Every product must be
// priced.
func NewCatalog(prices map[string]int64) (Catalog, error) {
	c := make(Catalog, len(products))
	for name, cents := range prices {
		p, err := ParseProduct(name)
		if err != nil {
			return nil, fmt.Errorf("billing.prices: %w", err)
		}
		if cents <= 0 {
			return nil, fmt.Errorf("billing.prices: %s must be positive", name)
		}
		c[p] = money.Cents(cents)
	}
	for _, p := range products {
		if _, ok := c[p]; !ok {
			return nil, fmt.Errorf("billing.prices: missing price for %s", p)
		}
	}
	return c, nil
}

// Price returns the price of p
func (c Catalog) Price(p Product) (money.Cents, error) {
	price, ok := c[p]
	if !ok {
		return 0, fmt.Errorf("no price for %s", p)
	}
	return price, nil
}

// Offers lists the catalog, plans first
func (c Catalog) Offers() []Offer {
	out := make([]Offer, 0, len(c))
	for p, price := range c {
		out = append(out, Offer{Product: p, Price: price, Plan: p.IsPlan(), Interval: p.Interval()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Plan != out[j].Plan {
			return out[i].Plan
		}
		return out[i].Product < out[j].Product
	})
	return out
}
