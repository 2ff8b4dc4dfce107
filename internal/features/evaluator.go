package features

import (
	"context"

	"github.com/google/uuid"
	"github.com/open-feature/go-sdk/openfeature"
)

// Evaluator answers flag questions through the OpenFeature client
type Evaluator struct {
	client *openfeature.Client
}

// Register installs provider under ProviderName and returns an evaluator
// bound to it
func Register(provider *Provider) (*Evaluator, error) {
	if err := openfeature.SetNamedProviderAndWait(ProviderName, provider); err != nil {
		return nil, err
	}
	return &Evaluator{client: openfeature.NewClient(ProviderName)}, nil
}

// Enabled reports whether flag is on for the account. Evaluation errors
// resolve to off.
func (e *Evaluator) Enabled(ctx context.Context, accountID uuid.UUID, flag string) bool {
	evalCtx := openfeature.NewEvaluationContext(accountID.String(), map[string]interface{}{})
	on, err := e.client.BooleanValue(ctx, flag, false, evalCtx)
	if err != nil {
		return false
	}
	return on
}

// EnabledFlags evaluates every known flag for the account
func (e *Evaluator) EnabledFlags(ctx context.Context, accountID uuid.UUID) []string {
	enabled := []string{}
	for _, flag := range Known {
		if e.Enabled(ctx, accountID, flag) {
			enabled = append(enabled, flag)
		}
	}
	return enabled
}
