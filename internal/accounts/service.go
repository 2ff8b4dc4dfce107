package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/db"
	"github.com/fieldledger/fieldledger/internal/db/transaction"
	"github.com/fieldledger/fieldledger/internal/features"
	"github.com/fieldledger/fieldledger/internal/money"
	"github.com/fieldledger/fieldledger/internal/referral"
	"github.com/fieldledger/fieldledger/internal/validation"
	"github.com/fieldledger/fieldledger/internal/web/auth"
)

// ErrNotAdmin is returned when preview mode is requested for a non-admin
var ErrNotAdmin = errors.New("account is not an administrator")

const codeAttempts = 5

// ChangeListener is told whenever something that feeds app state changes
type ChangeListener interface {
	AccountChanged(ctx context.Context, accountID uuid.UUID)
}

// ReferralLinker records that a new account signed up with a referral code.
// It runs inside the signup transaction.
type ReferralLinker interface {
	LinkSignup(ctx context.Context, q db.DBTX, referrerID, refereeID uuid.UUID, code string) error
}

// SignupInput is the signup request
type SignupInput struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	BusinessName string `json:"business_name"`
	ReferralCode string `json:"referral_code"`
}

// SetupInput updates business details. Nil fields are left unchanged.
type SetupInput struct {
	BusinessName  *string            `json:"business_name"`
	Phone         *string            `json:"phone"`
	Address       *string            `json:"address"`
	DefaultTaxBps *money.BasisPoints `json:"default_tax_bps"`
	InvoicePrefix *string            `json:"invoice_prefix"`
}

// Session is returned by signup and login
type Session struct {
	Account   *Account  `json:"account"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service implements account workflows
type Service struct {
	repo      *Repository
	txm       *transaction.Manager
	tokens    *auth.TokenService
	linker    ReferralLinker
	listener  ChangeListener
	trialDays int
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates the account service
func NewService(repo *Repository, txm *transaction.Manager, tokens *auth.TokenService, trialDays int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		txm:       txm,
		tokens:    tokens,
		trialDays: trialDays,
		logger:    logger,
		now:       time.Now,
	}
}

// SetReferralLinker wires referral tracking into signup
func (s *Service) SetReferralLinker(l ReferralLinker) {
	s.linker = l
}

// SetChangeListener registers the app state change listener
func (s *Service) SetChangeListener(l ChangeListener) {
	s.listener = l
}

func (s *Service) changed(ctx context.Context, id uuid.UUID) {
	if s.listener != nil {
		s.listener.AccountChanged(ctx, id)
	}
}

// Signup creates an account, linking the referrer when a code is given
func (s *Service) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	a, err := s.create(ctx, in, RoleUser)
	if err != nil {
		return nil, err
	}
	return s.session(a)
}

// CreateAdmin creates an administrator account
func (s *Service) CreateAdmin(ctx context.Context, email, password string) (*Account, error) {
	return s.create(ctx, SignupInput{Email: email, Password: password}, RoleAdmin)
}

func (s *Service) create(ctx context.Context, in SignupInput, role string) (*Account, error) {
	in.Email = NormalizeEmail(in.Email)
	in.BusinessName = strings.TrimSpace(in.BusinessName)
	in.ReferralCode = referral.NormalizeCode(in.ReferralCode)

	v := validation.New()
	v.Required("email", in.Email)
	v.Email("email", in.Email)
	v.MaxLength("business_name", in.BusinessName, 200)
	if err := auth.ValidatePassword(in.Password); err != nil {
		v.Add("password", err.Error())
	}
	if in.ReferralCode != "" && !referral.ValidCode(in.ReferralCode) {
		v.Add("referral_code", "is not a valid referral code")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	var referrer *Account
	if in.ReferralCode != "" {
		r, err := s.repo.GetByReferralCode(ctx, in.ReferralCode)
		if db.IsNotFound(err) {
			return nil, ErrInvalidReferral
		}
		if err != nil {
			return nil, fmt.Errorf("lookup referral code: %w", err)
		}
		referrer = r
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := referral.NewCode()
		if err != nil {
			return nil, err
		}

		a := &Account{
			Email:        in.Email,
			PasswordHash: hash,
			BusinessName: in.BusinessName,
			Role:         role,
			ReferralCode: code,
		}
		if referrer != nil {
			a.ReferredBy = &referrer.ID
		}

		err = s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
			if err := s.repo.WithTx(tx).Create(ctx, a); err != nil {
				return err
			}
			if referrer != nil && s.linker != nil {
				return s.linker.LinkSignup(ctx, tx, referrer.ID, a.ID, in.ReferralCode)
			}
			return nil
		})
		switch {
		case err == nil:
			s.logger.Info("account created",
				zap.String("account_id", a.ID.String()),
				zap.String("role", role),
				zap.Bool("referred", referrer != nil))
			return a, nil
		case db.IsUniqueViolation(err) && strings.Contains(err.Error(), "referral_code"):
			continue
		case db.IsUniqueViolation(err):
			return nil, ErrEmailTaken
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("could not allocate a unique referral code after %d attempts", codeAttempts)
}

// Login checks credentials and issues a token
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	a, err := s.repo.GetByEmail(ctx, email)
	if db.IsNotFound(err) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(password, a.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.session(a)
}

func (s *Service) session(a *Account) (*Session, error) {
	token, err := s.tokens.Issue(a.ID, a.Email, a.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Account: a, Token: token, ExpiresAt: s.now().Add(s.tokens.TTL())}, nil
}

// Get loads an account
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.repo.Get(ctx, id)
}

// CompleteOnboarding moves an account out of the install state
func (s *Service) CompleteOnboarding(ctx context.Context, id uuid.UUID) (*Account, error) {
	if err := s.repo.MarkOnboarded(ctx, id, s.now().UTC()); err != nil {
		return nil, err
	}
	s.changed(ctx, id)
	return s.repo.Get(ctx, id)
}

// UpdateSetup applies business details. The first time the required details
// are all present on an onboarded account, setup completes and the trial starts.
func (s *Service) UpdateSetup(ctx context.Context, id uuid.UUID, in SetupInput) (*Account, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.BusinessName != nil {
		a.BusinessName = strings.TrimSpace(*in.BusinessName)
	}
	if in.Phone != nil {
		a.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Address != nil {
		a.Address = strings.TrimSpace(*in.Address)
	}
	if in.DefaultTaxBps != nil {
		a.DefaultTaxBps = *in.DefaultTaxBps
	}
	if in.InvoicePrefix != nil {
		a.InvoicePrefix = strings.ToUpper(strings.TrimSpace(*in.InvoicePrefix))
	}

	v := validation.New()
	v.MaxLength("business_name", a.BusinessName, 200)
	v.MaxLength("phone", a.Phone, 40)
	v.MaxLength("address", a.Address, 500)
	v.Check(a.DefaultTaxBps.Valid(), "default_tax_bps", "must be between 0 and 10000")
	v.MaxLength("invoice_prefix", a.InvoicePrefix, 10)
	v.Check(isPrefix(a.InvoicePrefix), "invoice_prefix", "may only contain letters and digits")
	if err := v.Err(); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateProfile(ctx, a); err != nil {
		return nil, err
	}

	if a.OnboardedAt != nil && a.SetupCompletedAt == nil && a.SetupComplete() {
		now := s.now().UTC()
		trialEnds := now.AddDate(0, 0, s.trialDays)
		if err := s.repo.CompleteSetup(ctx, id, now, trialEnds); err != nil {
			return nil, err
		}
		s.logger.Info("account setup completed",
			zap.String("account_id", id.String()),
			zap.Time("trial_ends_at", trialEnds))
	}

	s.changed(ctx, id)
	return s.repo.Get(ctx, id)
}

func isPrefix(p string) bool {
	for _, r := range p {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// List returns a page of accounts for the admin console
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Account, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// SetFeatureFlag switches a feature flag on or off
func (s *Service) SetFeatureFlag(ctx context.Context, id uuid.UUID, flag string, on bool) (*Account, error) {
	if err := features.Validate(flag); err != nil {
		v := validation.New()
		v.Add("flag", err.Error())
		return nil, v
	}

	err := s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		a, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		return repo.SetFlags(ctx, id, features.With(a.FeatureFlags, flag, on))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("feature flag changed",
		zap.String("account_id", id.String()),
		zap.String("flag", flag),
		zap.Bool("enabled", on))
	s.changed(ctx, id)
	return s.repo.Get(ctx, id)
}

// SetPreview toggles admin preview mode. Only administrators may preview.
func (s *Service) SetPreview(ctx context.Context, id uuid.UUID, on bool) (*Account, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if on && a.Role != RoleAdmin {
		return nil, ErrNotAdmin
	}
	if err := s.repo.SetPreview(ctx, id, on); err != nil {
		return nil, err
	}
	s.changed(ctx, id)
	return s.repo.Get(ctx, id)
}

// SetAffiliate toggles affiliate commission eligibility
func (s *Service) SetAffiliate(ctx context.Context, id uuid.UUID, on bool) (*Account, error) {
	if err := s.repo.SetAffiliate(ctx, id, on); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// UpdateSubscription applies a billing-driven subscription change
func (s *Service) UpdateSubscription(ctx context.Context, id uuid.UUID, u SubscriptionUpdate) error {
	if err := s.repo.UpdateSubscription(ctx, id, u); err != nil {
		return err
	}
	s.logger.Info("subscription updated",
		zap.String("account_id", id.String()),
		zap.String("status", u.Status),
		zap.String("plan", u.Plan))
	s.changed(ctx, id)
	return nil
}
