package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/accounts"
	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/db"
	"github.com/fieldledger/fieldledger/internal/db/transaction"
	"github.com/fieldledger/fieldledger/internal/features"
	"github.com/fieldledger/fieldledger/internal/metrics"
	"github.com/fieldledger/fieldledger/internal/money"
	"github.com/fieldledger/fieldledger/internal/referral"
	"github.com/fieldledger/fieldledger/internal/validation"
)

var (
	// ErrAlreadySubscribed is returned when buying a plan on an active subscription
	ErrAlreadySubscribed = errors.New("account already has an active subscription")
	// ErrAlreadyOwned is returned when buying an add-on the account already has
	ErrAlreadyOwned = errors.New("account already owns this add-on")
)

// CheckoutGateway creates hosted checkout sessions
type CheckoutGateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest, idempotencyKey string) (*CheckoutSession, error)
}

// PurchaseHook runs inside the transaction that records a purchase
type PurchaseHook interface {
	OnPurchase(ctx context.Context, tx db.DBTX, p referral.Purchase) error
}

// Config holds the checkout redirect targets and webhook verification settings
type Config struct {
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	Tolerance     time.Duration
}

// Service sells products and applies provider webhook events
type Service struct {
	repo     *Repository
	accounts *accounts.Repository
	txm      *transaction.Manager
	gateway  CheckoutGateway
	hook     PurchaseHook
	listener accounts.ChangeListener
	catalog  Catalog
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates the billing service
func NewService(repo *Repository, accts *accounts.Repository, txm *transaction.Manager, gateway CheckoutGateway,
	hook PurchaseHook, catalog Catalog, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	return &Service{
		repo:     repo,
		accounts: accts,
		txm:      txm,
		gateway:  gateway,
		hook:     hook,
		catalog:  catalog,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// SetChangeListener registers the listener told about subscription changes
func (s *Service) SetChangeListener(l accounts.ChangeListener) {
	s.listener = l
}

// Offers lists what can be bought
func (s *Service) Offers() []Offer {
	return s.catalog.Offers()
}

// Purchases lists an account's purchase history
func (s *Service) Purchases(ctx context.Context, accountID uuid.UUID) ([]*Purchase, error) {
	return s.repo.Purchases(ctx, accountID)
}

// Checkout starts a hosted checkout for product
func (s *Service) Checkout(ctx context.Context, accountID uuid.UUID, product string) (*CheckoutSession, error) {
	p, err := ParseProduct(product)
	if err != nil {
		v := validation.New()
		v.Add("product", err.Error())
		return nil, v
	}

	a, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if p.IsPlan() && a.SubscriptionStatus == appstate.SubscriptionActive {
		return nil, ErrAlreadySubscribed
	}
	if !p.IsPlan() && features.NewSet(a.FeatureFlags).Has(p.Flag()) {
		return nil, ErrAlreadyOwned
	}

	price, err := s.catalog.Price(p)
	if err != nil {
		return nil, err
	}

	// Repeated clicks within the same five minutes reuse one session
	key := fmt.Sprintf("checkout-%s-%s-%d", a.ID, p, s.now().Unix()/300)
	session, err := s.gateway.CreateCheckoutSession(ctx, CheckoutRequest{
		AccountID:  a.ID,
		Email:      a.Email,
		CustomerID: a.ProviderCustomerID,
		Product:    p,
		Price:      price,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	}, key)
	if err != nil {
		return nil, err
	}

	s.logger.Info("checkout started",
		zap.String("account_id", a.ID.String()),
		zap.String("product", string(p)),
		zap.String("session_id", session.ID))
	return session, nil
}

// HandleWebhook verifies and applies a provider event. Replayed events are
// acknowledged without effect.
func (s *Service) HandleWebhook(ctx context.Context, signature string, payload []byte) error {
	if err := VerifySignature(signature, payload, s.cfg.WebhookSecret, s.now(), s.cfg.Tolerance); err != nil {
		metrics.RecordWebhook("unknown", "rejected")
		return err
	}
	ev, err := ParseEvent(payload)
	if err != nil {
		metrics.RecordWebhook("unknown", "rejected")
		return err
	}

	log := s.logger.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))

	var (
		duplicate bool
		affected  uuid.UUID
	)
	err = s.txm.WithTransaction(ctx, func(tx *sql.Tx) error {
		fresh, err := s.repo.WithTx(tx).RecordEvent(ctx, ev.ID, ev.Type, s.now().UTC())
		if err != nil {
			return err
		}
		if !fresh {
			duplicate = true
			return nil
		}
		affected, err = s.apply(ctx, tx, log, ev)
		return err
	})
	switch {
	case err != nil:
		metrics.RecordWebhook(ev.Type, "error")
		log.Error("webhook processing failed", zap.Error(err))
		return err
	case duplicate:
		metrics.RecordWebhook(ev.Type, "duplicate")
		log.Debug("duplicate webhook ignored")
		return nil
	case affected == uuid.Nil:
		metrics.RecordWebhook(ev.Type, "ignored")
		return nil
	}

	metrics.RecordWebhook(ev.Type, "processed")
	log.Info("webhook processed", zap.String("account_id", affected.String()))
	if s.listener != nil {
		s.listener.AccountChanged(ctx, affected)
	}
	return nil
}

func (s *Service) apply(ctx context.Context, tx db.DBTX, log *zap.Logger, ev *Event) (uuid.UUID, error) {
	switch ev.Type {
	case EventCheckoutCompleted:
		return s.checkoutCompleted(ctx, tx, log, ev)
	case EventSubscriptionDeleted:
		return s.subscriptionChanged(ctx, tx, log, ev.Object.Get("id").String(), func(a *accounts.Account) *accounts.SubscriptionUpdate {
			return &accounts.SubscriptionUpdate{Status: appstate.SubscriptionCanceled}
		})
	case EventPaymentFailed:
		return s.subscriptionChanged(ctx, tx, log, ev.Object.Get("subscription").String(), func(a *accounts.Account) *accounts.SubscriptionUpdate {
			if a.SubscriptionStatus == appstate.SubscriptionPastDue {
				return nil
			}
			since := s.now().UTC()
			return &accounts.SubscriptionUpdate{Status: appstate.SubscriptionPastDue, PastDueSince: &since}
		})
	case EventPaymentSucceeded:
		return s.subscriptionChanged(ctx, tx, log, ev.Object.Get("subscription").String(), func(a *accounts.Account) *accounts.SubscriptionUpdate {
			if a.SubscriptionStatus != appstate.SubscriptionPastDue {
				return nil
			}
			return &accounts.SubscriptionUpdate{Status: appstate.SubscriptionActive}
		})
	default:
		log.Debug("webhook event type not handled")
		return uuid.Nil, nil
	}
}

func (s *Service) checkoutCompleted(ctx context.Context, tx db.DBTX, log *zap.Logger, ev *Event) (uuid.UUID, error) {
	obj := ev.Object
	ref := obj.Get("client_reference_id").String()
	if ref == "" {
		ref = obj.Get("metadata.account_id").String()
	}
	accountID, err := uuid.Parse(ref)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad client_reference_id %q", ErrMalformedEvent, ref)
	}
	product, err := ParseProduct(obj.Get("metadata.product").String())
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	accts := s.accounts.WithTx(tx)
	if _, err := accts.Get(ctx, accountID); db.IsNotFound(err) {
		log.Warn("checkout for unknown account", zap.String("account_id", accountID.String()))
		return uuid.Nil, nil
	} else if err != nil {
		return uuid.Nil, err
	}

	// subscription sessions carry the first invoice instead of a payment intent
	kind, paymentID := referral.PaymentIntent, obj.Get("payment_intent").String()
	if paymentID == "" {
		kind, paymentID = referral.PaymentInvoice, obj.Get("invoice").String()
	}
	purchase := &Purchase{
		AccountID:   accountID,
		Product:     string(product),
		Amount:      money.Cents(obj.Get("amount_total").Int()),
		PaymentKind: kind,
		PaymentID:   paymentID,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.WithTx(tx).InsertPurchase(ctx, purchase); err != nil {
		return uuid.Nil, err
	}

	if product.IsPlan() {
		err = accts.UpdateSubscription(ctx, accountID, accounts.SubscriptionUpdate{
			Status:         appstate.SubscriptionActive,
			Plan:           string(product),
			SubscriptionID: obj.Get("subscription").String(),
			CustomerID:     obj.Get("customer").String(),
		})
	} else {
		var flags []string
		flags, err = accts.Flags(ctx, accountID)
		if err == nil {
			err = accts.SetFlags(ctx, accountID, features.With(flags, product.Flag(), true))
		}
	}
	if err != nil {
		return uuid.Nil, err
	}

	if s.hook != nil {
		if err := s.hook.OnPurchase(ctx, tx, *purchase); err != nil {
			return uuid.Nil, fmt.Errorf("purchase hook: %w", err)
		}
	}
	return accountID, nil
}

func (s *Service) subscriptionChanged(ctx context.Context, tx db.DBTX, log *zap.Logger, subscriptionID string,
	change func(a *accounts.Account) *accounts.SubscriptionUpdate) (uuid.UUID, error) {
	if subscriptionID == "" {
		return uuid.Nil, fmt.Errorf("%w: missing subscription id", ErrMalformedEvent)
	}

	accts := s.accounts.WithTx(tx)
	a, err := accts.GetBySubscriptionID(ctx, subscriptionID)
	if db.IsNotFound(err) {
		log.Warn("event for unknown subscription", zap.String("subscription_id", subscriptionID))
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}

	u := change(a)
	if u == nil {
		return uuid.Nil, nil
	}
	if err := accts.UpdateSubscription(ctx, a.ID, *u); err != nil {
		return uuid.Nil, err
	}
	return a.ID, nil
}

// PurgeEvents forgets processed event ids older than retention
func (s *Service) PurgeEvents(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.PurgeEvents(ctx, s.now().UTC().Add(-retention))
}
