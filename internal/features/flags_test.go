package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSet_IgnoresUnknown(t *testing.T) {
	s := NewSet([]string{MileagePro, "beta_ui", MileagePro})

	assert.True(t, s.Has(MileagePro))
	assert.False(t, s.Has("beta_ui"))
	assert.False(t, s.Has(FinancialPro))
	assert.Equal(t, []string{MileagePro}, s.Keys())
}

func TestWith(t *testing.T) {
	flags := With(nil, FinancialPro, true)
	assert.Equal(t, []string{FinancialPro}, flags)

	flags = With(flags, MileagePro, true)
	assert.Equal(t, []string{FinancialPro, MileagePro}, flags)

	flags = With(flags, FinancialPro, false)
	assert.Equal(t, []string{MileagePro}, flags)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(MileagePro))
	assert.NoError(t, Validate(FinancialPro))
	assert.Error(t, Validate("unlimited_everything"))
}
