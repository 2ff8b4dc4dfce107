// Package features defines the per-account feature flags that unlock paid
// tiers and exposes them through an OpenFeature provider.
package features

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Flag keys stored in accounts.feature_flags
const (
	MileagePro   = "mileage_pro"
	FinancialPro = "financial_pro"
)

// Known lists every flag the service understands
var Known = []string{MileagePro, FinancialPro}

// IsKnown reports whether flag is a recognised key
func IsKnown(flag string) bool {
	for _, k := range Known {
		if k == flag {
			return true
		}
	}
	return false
}

// Validate rejects unknown flag keys
func Validate(flag string) error {
	if !IsKnown(flag) {
		return fmt.Errorf("unknown feature flag %q", flag)
	}
	return nil
}

// Set is an immutable view over an account's enabled flags
type Set map[string]bool

// NewSet builds a Set from stored flag keys, ignoring unknown keys
func NewSet(flags []string) Set {
	s := make(Set, len(flags))
	for _, f := range flags {
		if IsKnown(f) {
			s[f] = true
		}
	}
	return s
}

// Has reports whether flag is enabled
func (s Set) Has(flag string) bool {
	return s[flag]
}

// Keys returns the enabled flags in sorted order
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s))
	for k, on := range s {
		if on {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// With returns the stored form of flags with flag switched on or off
func With(flags []string, flag string, on bool) []string {
	s := NewSet(flags)
	if on {
		s[flag] = true
	} else {
		delete(s, flag)
	}
	return s.Keys()
}

// Source loads the stored flags for an account
type Source interface {
	Flags(ctx context.Context, accountID uuid.UUID) ([]string, error)
}
