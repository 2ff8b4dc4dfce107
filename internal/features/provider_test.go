package features

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/open-feature/go-sdk/openfeature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	flags map[uuid.UUID][]string
	err   error
	calls int
}

func (s *stubSource) Flags(ctx context.Context, accountID uuid.UUID) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.flags[accountID], nil
}

func TestProvider_BooleanEvaluation(t *testing.T) {
	account := uuid.New()
	src := &stubSource{flags: map[uuid.UUID][]string{account: {MileagePro}}}
	p := NewProvider(src)
	ctx := context.Background()

	tests := []struct {
		name     string
		flag     string
		evalCtx  openfeature.FlattenedContext
		want     bool
		errCode  openfeature.ErrorCode
		variant  string
		useStore bool
	}{
		{
			name:     "enabled flag",
			flag:     MileagePro,
			evalCtx:  openfeature.FlattenedContext{openfeature.TargetingKey: account.String()},
			want:     true,
			variant:  "on",
			useStore: true,
		},
		{
			name:     "disabled flag",
			flag:     FinancialPro,
			evalCtx:  openfeature.FlattenedContext{openfeature.TargetingKey: account.String()},
			want:     false,
			variant:  "off",
			useStore: true,
		},
		{
			name:    "preset flags skip lookup",
			flag:    FinancialPro,
			evalCtx: openfeature.FlattenedContext{FlagsAttribute: []string{FinancialPro}},
			want:    true,
			variant: "on",
		},
		{
			name:    "unknown flag",
			flag:    "nope",
			evalCtx: openfeature.FlattenedContext{openfeature.TargetingKey: account.String()},
			errCode: openfeature.FlagNotFoundCode,
		},
		{
			name:    "missing targeting key",
			flag:    MileagePro,
			evalCtx: openfeature.FlattenedContext{},
			errCode: openfeature.TargetingKeyMissingCode,
		},
		{
			name:    "invalid account id",
			flag:    MileagePro,
			evalCtx: openfeature.FlattenedContext{openfeature.TargetingKey: "not-a-uuid"},
			errCode: openfeature.InvalidContextCode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := src.calls
			got := p.BooleanEvaluation(ctx, tt.flag, false, tt.evalCtx)

			assert.Equal(t, tt.want, got.Value)
			if tt.errCode != "" {
				assert.Equal(t, openfeature.ErrorReason, got.Reason)
				assert.Contains(t, got.ResolutionError.Error(), string(tt.errCode))
				return
			}
			assert.Equal(t, tt.variant, got.Variant)
			if tt.useStore {
				assert.Equal(t, before+1, src.calls)
			} else {
				assert.Equal(t, before, src.calls)
			}
		})
	}
}

func TestProvider_SourceError(t *testing.T) {
	p := NewProvider(&stubSource{err: errors.New("db down")})

	got := p.BooleanEvaluation(context.Background(), MileagePro, true, openfeature.FlattenedContext{
		openfeature.TargetingKey: uuid.NewString(),
	})

	assert.True(t, got.Value)
	assert.Equal(t, openfeature.ErrorReason, got.Reason)
	assert.Contains(t, got.ResolutionError.Error(), "db down")
}

func TestProvider_NonBooleanTypes(t *testing.T) {
	p := NewProvider(&stubSource{})
	ctx := context.Background()

	assert.Equal(t, "x", p.StringEvaluation(ctx, MileagePro, "x", nil).Value)
	assert.Equal(t, int64(3), p.IntEvaluation(ctx, MileagePro, 3, nil).Value)
	assert.Equal(t, 1.5, p.FloatEvaluation(ctx, MileagePro, 1.5, nil).Value)
	assert.Equal(t, openfeature.ErrorReason, p.ObjectEvaluation(ctx, MileagePro, nil, nil).Reason)
	assert.Equal(t, ProviderName, p.Metadata().Name)
}

func TestEvaluator(t *testing.T) {
	account := uuid.New()
	src := &stubSource{flags: map[uuid.UUID][]string{account: {FinancialPro}}}

	ev, err := Register(NewProvider(src))
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, ev.Enabled(ctx, account, FinancialPro))
	assert.False(t, ev.Enabled(ctx, account, MileagePro))
	assert.Equal(t, []string{FinancialPro}, ev.EnabledFlags(ctx, account))
	assert.Empty(t, ev.EnabledFlags(ctx, uuid.New()))
}
