package features

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/open-feature/go-sdk/openfeature"
)

// ProviderName is the OpenFeature domain the account provider registers under
const ProviderName = "fieldledger-accounts"

// FlagsAttribute lets callers that already hold the account's flags pass them
// in the evaluation context instead of triggering a lookup
const FlagsAttribute = "flags"

// Provider resolves boolean flags from the account's stored flag list. The
// targeting key is the account id.
type Provider struct {
	source Source
}

// NewProvider creates a provider backed by source
func NewProvider(source Source) *Provider {
	return &Provider{source: source}
}

// Metadata returns the provider metadata
func (p *Provider) Metadata() openfeature.Metadata {
	return openfeature.Metadata{Name: ProviderName}
}

// Hooks returns no provider hooks
func (p *Provider) Hooks() []openfeature.Hook {
	return []openfeature.Hook{}
}

// BooleanEvaluation resolves a flag for the account named by the targeting key
func (p *Provider) BooleanEvaluation(ctx context.Context, flag string, defaultValue bool, evalCtx openfeature.FlattenedContext) openfeature.BoolResolutionDetail {
	if !IsKnown(flag) {
		return openfeature.BoolResolutionDetail{
			Value: defaultValue,
			ProviderResolutionDetail: openfeature.ProviderResolutionDetail{
				ResolutionError: openfeature.NewFlagNotFoundResolutionError(fmt.Sprintf("flag %s is not defined", flag)),
				Reason:          openfeature.ErrorReason,
			},
		}
	}

	flags, resErr := p.flagsFor(ctx, evalCtx)
	if resErr != nil {
		return openfeature.BoolResolutionDetail{
			Value: defaultValue,
			ProviderResolutionDetail: openfeature.ProviderResolutionDetail{
				ResolutionError: *resErr,
				Reason:          openfeature.ErrorReason,
			},
		}
	}

	on := NewSet(flags).Has(flag)
	variant := "off"
	if on {
		variant = "on"
	}
	return openfeature.BoolResolutionDetail{
		Value: on,
		ProviderResolutionDetail: openfeature.ProviderResolutionDetail{
			Reason:  openfeature.TargetingMatchReason,
			Variant: variant,
		},
	}
}

// StringEvaluation is unsupported; all account flags are boolean
func (p *Provider) StringEvaluation(ctx context.Context, flag string, defaultValue string, evalCtx openfeature.FlattenedContext) openfeature.StringResolutionDetail {
	return openfeature.StringResolutionDetail{
		Value:                    defaultValue,
		ProviderResolutionDetail: typeMismatch(flag),
	}
}

// FloatEvaluation is unsupported; all account flags are boolean
func (p *Provider) FloatEvaluation(ctx context.Context, flag string, defaultValue float64, evalCtx openfeature.FlattenedContext) openfeature.FloatResolutionDetail {
	return openfeature.FloatResolutionDetail{
		Value:                    defaultValue,
		ProviderResolutionDetail: typeMismatch(flag),
	}
}

// IntEvaluation is unsupported; all account flags are boolean
func (p *Provider) IntEvaluation(ctx context.Context, flag string, defaultValue int64, evalCtx openfeature.FlattenedContext) openfeature.IntResolutionDetail {
	return openfeature.IntResolutionDetail{
		Value:                    defaultValue,
		ProviderResolutionDetail: typeMismatch(flag),
	}
}

// ObjectEvaluation is unsupported; all account flags are boolean
func (p *Provider) ObjectEvaluation(ctx context.Context, flag string, defaultValue interface{}, evalCtx openfeature.FlattenedContext) openfeature.InterfaceResolutionDetail {
	return openfeature.InterfaceResolutionDetail{
		Value:                    defaultValue,
		ProviderResolutionDetail: typeMismatch(flag),
	}
}

func (p *Provider) flagsFor(ctx context.Context, evalCtx openfeature.FlattenedContext) ([]string, *openfeature.ResolutionError) {
	if preset, ok := evalCtx[FlagsAttribute].([]string); ok {
		return preset, nil
	}

	key, _ := evalCtx[openfeature.TargetingKey].(string)
	if key == "" {
		e := openfeature.NewTargetingKeyMissingResolutionError("account id required")
		return nil, &e
	}
	accountID, err := uuid.Parse(key)
	if err != nil {
		e := openfeature.NewInvalidContextResolutionError(fmt.Sprintf("invalid account id %q", key))
		return nil, &e
	}

	flags, err := p.source.Flags(ctx, accountID)
	if err != nil {
		e := openfeature.NewGeneralResolutionError(err.Error())
		return nil, &e
	}
	return flags, nil
}

func typeMismatch(flag string) openfeature.ProviderResolutionDetail {
	return openfeature.ProviderResolutionDetail{
		ResolutionError: openfeature.NewTypeMismatchResolutionError(fmt.Sprintf("flag %s is boolean", flag)),
		Reason:          openfeature.ErrorReason,
	}
}
