package calendar

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	d, err := Parse("2025-02-28")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-28", d.String())
	assert.Equal(t, "2025-03-01", d.AddDays(1).String())

	_, err = Parse("28/02/2025")
	assert.Error(t, err)
}

func TestDateOf(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	d := DateOf(time.Date(2025, 1, 1, 23, 30, 0, 0, loc))
	assert.Equal(t, NewDate(2025, 1, 1), d)
}

func TestJSON(t *testing.T) {
	type payload struct {
		Due  Date `json:"due"`
		Paid Date `json:"paid"`
	}

	raw, err := json.Marshal(payload{Due: NewDate(2025, 7, 4)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"due":"2025-07-04","paid":null}`, string(raw))

	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"due":"2024-12-31","paid":null}`), &p))
	assert.Equal(t, NewDate(2024, 12, 31), p.Due)
	assert.True(t, p.Paid.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"due":"tomorrow"}`), &p))
}

func TestScan(t *testing.T) {
	tests := []struct {
		name string
		src  interface{}
		want Date
	}{
		{name: "time", src: time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC), want: NewDate(2025, 3, 9)},
		{name: "string", src: "2025-03-09", want: NewDate(2025, 3, 9)},
		{name: "bytes with time", src: []byte("2025-03-09T00:00:00Z"), want: NewDate(2025, 3, 9)},
		{name: "nil", src: nil, want: Date{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Date
			require.NoError(t, d.Scan(tt.src))
			assert.Equal(t, tt.want, d)
		})
	}

	var d Date
	assert.Error(t, d.Scan(42))
}

func TestValue(t *testing.T) {
	v, err := NewDate(2025, 1, 2).Value()
	require.NoError(t, err)
	assert.Equal(t, "2025-01-02", v)

	v, err = Date{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRanges(t *testing.T) {
	y := Year(2024)
	assert.True(t, y.Contains(NewDate(2024, 12, 31)))
	assert.False(t, y.Contains(NewDate(2025, 1, 1)))
	assert.True(t, y.Valid())

	m := Month(2024, time.February)
	assert.Equal(t, NewDate(2024, 3, 1), m.To)
	assert.True(t, m.Contains(NewDate(2024, 2, 29)))

	assert.Equal(t, NewDate(2024, 2, 1), NewDate(2024, 2, 17).MonthStart())
	assert.Equal(t, 30, NewDate(2024, 3, 1).DaysSince(NewDate(2024, 1, 31)))
	assert.False(t, Range{From: NewDate(2024, 1, 2), To: NewDate(2024, 1, 1)}.Valid())
}
