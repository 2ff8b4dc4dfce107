package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		name   string
		amount Cents
		bps    BasisPoints
		want   Cents
	}{
		{name: "ten percent", amount: 10000, bps: 1000, want: 1000},
		{name: "rounds half up", amount: 5, bps: 1000, want: 1},
		{name: "rounds down below half", amount: 4, bps: 1000, want: 0},
		{name: "zero rate", amount: 12345, bps: 0, want: 0},
		{name: "full rate", amount: 12345, bps: FullRate, want: 12345},
		{name: "negative rounds away from zero", amount: -5, bps: 1000, want: -1},
		{name: "large amount does not overflow", amount: 4_000_000_000_000_000_001, bps: 5000, want: 2_000_000_000_000_000_001},
		{name: "large negative amount", amount: -4_000_000_000_000_000_001, bps: 5000, want: -2_000_000_000_000_000_001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Percent(tt.amount, tt.bps))
		})
	}
}

func TestLineTotal(t *testing.T) {
	assert.Equal(t, Cents(3750), LineTotal(2.5, 1500))
	assert.Equal(t, Cents(33), LineTotal(0.333, 100))
	assert.Equal(t, Cents(0), LineTotal(0, 999))
}

func TestMinMaxSum(t *testing.T) {
	assert.Equal(t, Cents(1), Min(1, 2))
	assert.Equal(t, Cents(2), Max(1, 2))
	assert.Equal(t, Cents(6), Sum(1, 2, 3))
	assert.Equal(t, Cents(0), Sum())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "$0.00", Cents(0).Format())
	assert.Equal(t, "$1.05", Cents(105).Format())
	assert.Equal(t, "$1,234.56", Cents(123456).Format())
	assert.Equal(t, "$1,000,000.00", Cents(100000000).Format())
	assert.Equal(t, "-$12.30", Cents(-1230).Format())
}

func TestBasisPoints(t *testing.T) {
	assert.True(t, BasisPoints(2500).Valid())
	assert.False(t, BasisPoints(10001).Valid())
	assert.False(t, BasisPoints(-1).Valid())
	assert.Equal(t, "12.5%", BasisPoints(1250).String())
}
