package appstate

import (
	"fmt"
	"sort"

	"github.com/fieldledger/fieldledger/internal/features"
)

// Feature is a gated area of the application
type Feature string

const (
	Dashboard        Feature = "dashboard"
	Clients          Feature = "clients"
	Quotes           Feature = "quotes"
	Invoices         Feature = "invoices"
	Schedule         Feature = "schedule"
	Materials        Feature = "materials"
	Mileage          Feature = "mileage"
	MileagePro       Feature = "mileage_pro"
	FinancialReports Feature = "financial_reports"
	Referrals        Feature = "referrals"
	Settings         Feature = "settings"
	Billing          Feature = "billing"
	Admin            Feature = "admin"
)

// AllFeatures lists every gated feature
var AllFeatures = []Feature{
	Dashboard, Clients, Quotes, Invoices, Schedule, Materials, Mileage,
	MileagePro, FinancialReports, Referrals, Settings, Billing, Admin,
}

// ParseFeature converts a string into a Feature
func ParseFeature(s string) (Feature, error) {
	for _, f := range AllFeatures {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown feature %q", s)
}

// proFlags maps pro features to the flag that unlocks them on a paid plan
var proFlags = map[Feature]string{
	MileagePro:       features.MileagePro,
	FinancialReports: features.FinancialPro,
}

type grant uint8

const (
	deny grant = iota
	allow
	// allowWithFlag requires the feature's pro flag
	allowWithFlag
)

var matrix = map[State]map[Feature]grant{
	Install: {
		Settings: allow,
	},
	SetupIncomplete: {
		Settings: allow,
		Billing:  allow,
	},
	Base: {
		Dashboard: allow,
		Clients:   allow,
		Quotes:    allow,
		Invoices:  allow,
		Schedule:  allow,
		Referrals: allow,
		Settings:  allow,
		Billing:   allow,
	},
	Trial: {
		Dashboard:        allow,
		Clients:          allow,
		Quotes:           allow,
		Invoices:         allow,
		Schedule:         allow,
		Materials:        allow,
		Mileage:          allow,
		MileagePro:       allow,
		FinancialReports: allow,
		Referrals:        allow,
		Settings:         allow,
		Billing:          allow,
	},
	Paid: {
		Dashboard:        allow,
		Clients:          allow,
		Quotes:           allow,
		Invoices:         allow,
		Schedule:         allow,
		Materials:        allow,
		Mileage:          allow,
		MileagePro:       allowWithFlag,
		FinancialReports: allowWithFlag,
		Referrals:        allow,
		Settings:         allow,
		Billing:          allow,
	},
	AdminPreview: {
		Dashboard:        allow,
		Clients:          allow,
		Quotes:           allow,
		Invoices:         allow,
		Schedule:         allow,
		Materials:        allow,
		Mileage:          allow,
		MileagePro:       allow,
		FinancialReports: allow,
		Referrals:        allow,
		Settings:         allow,
		Billing:          allow,
		Admin:            allow,
	},
}

// Allows reports whether an account in state with flags may use feature
func Allows(state State, feature Feature, flags []string) bool {
	switch matrix[state][feature] {
	case allow:
		return true
	case allowWithFlag:
		return features.NewSet(flags).Has(proFlags[feature])
	default:
		return false
	}
}

// Capabilities returns the features state grants, sorted by name
func Capabilities(state State, flags []string) []Feature {
	caps := make([]Feature, 0, len(AllFeatures))
	for _, f := range AllFeatures {
		if Allows(state, f, flags) {
			caps = append(caps, f)
		}
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// IsPro reports whether feature is unlocked by an add-on flag
func IsPro(feature Feature) bool {
	_, ok := proFlags[feature]
	return ok
}
