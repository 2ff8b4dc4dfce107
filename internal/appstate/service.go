package appstate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/web/auth"
	"github.com/fieldledger/fieldledger/internal/web/cache"
	"github.com/fieldledger/fieldledger/internal/web/response"
)

// Source loads the inputs of state resolution for an account
type Source interface {
	Snapshot(ctx context.Context, accountID uuid.UUID) (Snapshot, error)
}

// View is what the SPA receives from /api/appstate
type View struct {
	State        State      `json:"state"`
	Capabilities []Feature  `json:"capabilities"`
	Flags        []string   `json:"flags"`
	Quotas       []Usage    `json:"quotas"`
	TrialEndsAt  *time.Time `json:"trial_ends_at,omitempty"`
}

// Service resolves account state, caching snapshots per account
type Service struct {
	source Source
	cache  cache.Cache
	policy Policy
	limits Limits
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a resolver. A nil cache disables caching.
func NewService(source Source, c cache.Cache, policy Policy, limits Limits, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source: source,
		cache:  c,
		policy: policy,
		limits: limits,
		ttl:    5 * time.Minute,
		logger: logger,
		now:    time.Now,
	}
}

// generationTTL outlives any snapshot so an expired generation cannot
// resurrect an entry written under it
const generationTTL = 24 * time.Hour

func generationKey(accountID uuid.UUID) string {
	return "appstate:" + accountID.String() + ":gen"
}

func cacheKey(accountID uuid.UUID, generation string) string {
	return "appstate:" + accountID.String() + ":" + generation
}

// generation returns the account's current cache generation. It reports false
// when the cache cannot be read and should be bypassed.
func (s *Service) generation(ctx context.Context, accountID uuid.UUID) (string, bool) {
	raw, err := s.cache.Get(ctx, generationKey(accountID))
	if cache.IsMiss(err) {
		return "0", true
	}
	if err != nil {
		s.logger.Warn("appstate cache read failed", zap.String("account_id", accountID.String()), zap.Error(err))
		return "", false
	}
	return string(raw), true
}

// Snapshot returns the account's resolution inputs, from cache when possible.
// Snapshots rather than states are cached so trial expiry is never stale.
// Entries are keyed by the generation read before loading, so a fill that
// races an Invalidate lands under a generation nobody reads again.
func (s *Service) Snapshot(ctx context.Context, accountID uuid.UUID) (Snapshot, error) {
	var snap Snapshot
	gen, cached := "", false
	if s.cache != nil {
		gen, cached = s.generation(ctx, accountID)
	}
	if cached {
		found, err := cache.GetJSON(ctx, s.cache, cacheKey(accountID, gen), &snap)
		if err != nil {
			s.logger.Warn("appstate cache read failed", zap.String("account_id", accountID.String()), zap.Error(err))
		}
		if found {
			return snap, nil
		}
	}

	snap, err := s.source.Snapshot(ctx, accountID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load account snapshot: %w", err)
	}

	if cached {
		if err := cache.SetJSON(ctx, s.cache, cacheKey(accountID, gen), snap, s.ttl); err != nil {
			s.logger.Warn("appstate cache write failed", zap.String("account_id", accountID.String()), zap.Error(err))
		}
	}
	return snap, nil
}

// Resolve returns the account's current state and flags
func (s *Service) Resolve(ctx context.Context, accountID uuid.UUID) (State, []string, error) {
	snap, err := s.Snapshot(ctx, accountID)
	if err != nil {
		return "", nil, err
	}
	return s.policy.Resolve(snap, s.now()), snap.Flags, nil
}

// Invalidate starts a new cache generation after an account, subscription or
// flag change, orphaning every snapshot cached before it
func (s *Service) Invalidate(ctx context.Context, accountID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Set(ctx, generationKey(accountID), []byte(uuid.NewString()), generationTTL); err != nil {
		return fmt.Errorf("invalidate appstate: %w", err)
	}
	return nil
}

// View assembles the account's state, capabilities and quota usage
func (s *Service) View(ctx context.Context, accountID uuid.UUID, used map[Quota]int) (View, error) {
	snap, err := s.Snapshot(ctx, accountID)
	if err != nil {
		return View{}, err
	}
	state := s.policy.Resolve(snap, s.now())

	flags := snap.Flags
	if flags == nil {
		flags = []string{}
	}
	return View{
		State:        state,
		Capabilities: Capabilities(state, snap.Flags),
		Flags:        flags,
		Quotas: []Usage{
			s.limits.UsageFor(state, QuotaClients, used[QuotaClients]),
			s.limits.UsageFor(state, QuotaInvoicesPerMonth, used[QuotaInvoicesPerMonth]),
		},
		TrialEndsAt: snap.TrialEndsAt,
	}, nil
}

// Navigate resolves the account and checks SPA route p
func (s *Service) Navigate(ctx context.Context, accountID uuid.UUID, p string) (Decision, error) {
	state, flags, err := s.Resolve(ctx, accountID)
	if err != nil {
		return Decision{}, err
	}
	return Navigate(state, flags, p), nil
}

// CheckQuota fails with ErrQuotaExceeded when the account may not create
// another q
func (s *Service) CheckQuota(ctx context.Context, accountID uuid.UUID, q Quota, used int) error {
	state, _, err := s.Resolve(ctx, accountID)
	if err != nil {
		return err
	}
	return s.limits.CheckQuota(state, q, used)
}

// RequireFeature rejects requests from accounts whose state does not grant
// feature. Denials render 402 with the SPA route to redirect to.
func (s *Service) RequireFeature(feature Feature) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, ok := auth.AccountID(r.Context())
			if !ok {
				response.RenderUnauthorized(w, "")
				return
			}

			state, flags, err := s.Resolve(r.Context(), accountID)
			if err != nil {
				s.logger.Error("failed to resolve app state", zap.String("account_id", accountID.String()), zap.Error(err))
				response.RenderInternalError(w)
				return
			}

			if Allows(state, feature, flags) {
				next.ServeHTTP(w, r)
				return
			}

			if feature == Admin {
				response.RenderForbidden(w, "")
				return
			}

			response.RenderPaymentRequired(w, fmt.Sprintf("%s is not available on your current plan", feature), denialRedirect(state), map[string]interface{}{
				"feature": string(feature),
				"state":   string(state),
			})
		})
	}
}

func denialRedirect(state State) string {
	switch state {
	case Install:
		return InstallPath
	case SetupIncomplete:
		return SetupPath
	default:
		return UpgradePath
	}
}
