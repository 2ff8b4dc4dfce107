package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 5*time.Minute, config.DefaultTTL)
	assert.Equal(t, "fieldledger:", config.Prefix)
}

func TestIsMiss(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "miss", err: ErrMiss, expected: true},
		{name: "wrapped miss", err: fmt.Errorf("lookup: %w", ErrMiss), expected: true},
		{name: "other error", err: assert.AnError, expected: false},
		{name: "nil error", err: nil, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsMiss(tt.err))
		})
	}
}

type snapshot struct {
	State string   `json:"state"`
	Flags []string `json:"flags"`
}

func TestJSONHelpers(t *testing.T) {
	c := NewMemoryCache(DefaultConfig())
	defer c.Close()
	ctx := context.Background()

	var got snapshot
	found, err := GetJSON(ctx, c, "account:1", &got)
	require.NoError(t, err)
	assert.False(t, found)

	want := snapshot{State: "trial", Flags: []string{"mileage_pro"}}
	require.NoError(t, SetJSON(ctx, c, "account:1", want, time.Minute))

	found, err = GetJSON(ctx, c, "account:1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)
}

func TestGetJSON_CorruptValue(t *testing.T) {
	c := NewMemoryCache(DefaultConfig())
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "bad", []byte("{"), time.Minute))

	var got snapshot
	_, err := GetJSON(ctx, c, "bad", &got)
	assert.Error(t, err)
}
