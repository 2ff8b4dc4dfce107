package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/metrics"
	"github.com/fieldledger/fieldledger/internal/money"
	"github.com/fieldledger/fieldledger/internal/referral"
)

// ErrGatewayUnavailable is returned while the circuit breaker is open
var ErrGatewayUnavailable = errors.New("payments provider unavailable")

const maxResponseBytes = 1 << 20

// APIError is an error response from the provider
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the request may succeed
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func isClientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && !apiErr.Temporary()
}

// GatewayConfig configures the provider client
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// MaxRetries bounds retries of network errors and 5xx responses
	MaxRetries uint64
}

// Gateway talks to the payments provider's form-encoded REST API. Calls are
// retried with exponential backoff and guarded by a circuit breaker.
type Gateway struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
	maxRetries uint64
	newBackOff func() backoff.BackOff
	logger     *zap.Logger
}

// NewGateway creates a provider client
func NewGateway(cfg GatewayConfig, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	g := &Gateway{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		client:     &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		logger:     logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			b.MaxElapsedTime = 15 * time.Second
			return b
		},
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payments",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			metrics.SetBreakerState(name, int(to))
		},
	})
	return g
}

// CheckoutRequest describes a checkout session to create
type CheckoutRequest struct {
	AccountID  uuid.UUID
	Email      string
	CustomerID string
	Product    Product
	Price      money.Cents
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the provider's hosted checkout page
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCheckoutSession starts a hosted checkout. Plans become recurring
// subscriptions; add-ons are one-time payments.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest, idempotencyKey string) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("client_reference_id", req.AccountID.String())
	form.Set("metadata[account_id]", req.AccountID.String())
	form.Set("metadata[product]", string(req.Product))
	if req.CustomerID != "" {
		form.Set("customer", req.CustomerID)
	} else if req.Email != "" {
		form.Set("customer_email", req.Email)
	}
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(int64(req.Price), 10))
	form.Set("line_items[0][price_data][product_data][name]", string(req.Product))
	if interval := req.Product.Interval(); interval != "" {
		form.Set("mode", "subscription")
		form.Set("line_items[0][price_data][recurring][interval]", interval)
	} else {
		form.Set("mode", "payment")
	}

	body, err := g.call(ctx, "create_checkout", http.MethodPost, "/v1/checkout/sessions", form, idempotencyKey)
	if err != nil {
		return nil, err
	}
	session := &CheckoutSession{ID: body.Get("id").String(), URL: body.Get("url").String()}
	if session.ID == "" || session.URL == "" {
		return nil, fmt.Errorf("checkout session response missing id or url")
	}
	return session, nil
}

// Refund issues a partial refund against the payment and returns the refund
// id. Invoices are resolved to the payment that settled them first. Errors
// the provider will keep returning wrap referral.ErrRefundRejected.
func (g *Gateway) Refund(ctx context.Context, kind referral.PaymentKind, paymentID string, amount money.Cents, idempotencyKey string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: amount must be positive, got %d", referral.ErrRefundRejected, amount)
	}
	if paymentID == "" {
		return "", fmt.Errorf("%w: purchase has no payment reference", referral.ErrRefundRejected)
	}

	switch kind {
	case referral.PaymentIntent, referral.PaymentCharge:
	case referral.PaymentInvoice:
		var err error
		kind, paymentID, err = g.invoicePayment(ctx, paymentID)
		if err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("%w: unsupported payment kind %q", referral.ErrRefundRejected, kind)
	}

	form := url.Values{}
	form.Set(string(kind), paymentID)
	form.Set("amount", strconv.FormatInt(int64(amount), 10))
	form.Set("metadata[reason]", "referral_reward")

	body, err := g.call(ctx, "refund", http.MethodPost, "/v1/refunds", form, idempotencyKey)
	if err != nil {
		return "", rejected(err)
	}
	id := body.Get("id").String()
	if id == "" {
		return "", fmt.Errorf("refund response missing id")
	}
	return id, nil
}

// invoicePayment finds the payment intent, or failing that the charge, that
// paid an invoice
func (g *Gateway) invoicePayment(ctx context.Context, invoiceID string) (referral.PaymentKind, string, error) {
	body, err := g.call(ctx, "get_invoice", http.MethodGet, "/v1/invoices/"+url.PathEscape(invoiceID), nil, "")
	if err != nil {
		return "", "", rejected(err)
	}
	if id := objectID(body.Get("payment_intent")); id != "" {
		return referral.PaymentIntent, id, nil
	}
	if id := objectID(body.Get("charge")); id != "" {
		return referral.PaymentCharge, id, nil
	}
	if id := objectID(body.Get("payments.data.0.payment.payment_intent")); id != "" {
		return referral.PaymentIntent, id, nil
	}
	return "", "", fmt.Errorf("%w: invoice %s has no payment", referral.ErrRefundRejected, invoiceID)
}

// objectID reads a reference that may be a bare id or an expanded object
func objectID(r gjson.Result) string {
	if r.IsObject() {
		return r.Get("id").String()
	}
	return r.String()
}

func rejected(err error) error {
	if isClientError(err) {
		return fmt.Errorf("%w: %w", referral.ErrRefundRejected, err)
	}
	return err
}

func (g *Gateway) call(ctx context.Context, op, method, path string, form url.Values, idempotencyKey string) (gjson.Result, error) {
	start := time.Now()
	res, err := g.breaker.Execute(func() (interface{}, error) {
		var body gjson.Result
		attempt := func() error {
			b, err := g.send(ctx, method, path, form, idempotencyKey)
			if err != nil {
				if isClientError(err) {
					return backoff.Permanent(err)
				}
				g.logger.Debug("provider call failed, retrying", zap.String("op", op), zap.Error(err))
				return err
			}
			body = b
			return nil
		}
		policy := backoff.WithContext(backoff.WithMaxRetries(g.newBackOff(), g.maxRetries), ctx)
		return body, backoff.Retry(attempt, policy)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = ErrGatewayUnavailable
	}
	metrics.RecordGatewayCall(op, err)
	if err != nil {
		g.logger.Warn("provider call failed",
			zap.String("op", op),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return gjson.Result{}, fmt.Errorf("%s: %w", op, err)
	}
	return res.(gjson.Result), nil
}

func (g *Gateway) send(ctx context.Context, method, path string, form url.Values, idempotencyKey string) (gjson.Result, error) {
	target, body := g.baseURL+path, io.Reader(nil)
	if method == http.MethodGet {
		if len(form) > 0 {
			target += "?" + form.Encode()
		}
	} else {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return gjson.Result{}, backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, err
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if gjson.ValidBytes(raw) {
			if msg := gjson.GetBytes(raw, "error.message").String(); msg != "" {
				apiErr.Message = msg
			}
			apiErr.Code = gjson.GetBytes(raw, "error.code").String()
		}
		return gjson.Result{}, apiErr
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, backoff.Permanent(fmt.Errorf("provider returned invalid JSON"))
	}
	return gjson.ParseBytes(raw), nil
}
