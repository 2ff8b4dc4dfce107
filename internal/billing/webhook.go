package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// SignatureHeader carries the webhook signature
const SignatureHeader = "Signature"

// DefaultTolerance is how far a signature timestamp may drift from now
const DefaultTolerance = 5 * time.Minute

var (
	// ErrInvalidSignature is returned when no v1 signature matches the payload
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrStaleSignature is returned when the signature timestamp is outside the tolerance
	ErrStaleSignature = errors.New("webhook signature timestamp outside tolerance")
	// ErrMalformedEvent is returned when the payload is not a usable event
	ErrMalformedEvent = errors.New("malformed webhook event")
)

// Sign returns a signature header for payload signed at t
func Sign(secret string, payload []byte, t time.Time) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	return "t=" + ts + ",v1=" + computeSignature(secret, ts, payload)
}

func computeSignature(secret, ts string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against payload. The header has the form
// "t=<unix>,v1=<hex>" and may carry several v1 values during secret rotation.
func VerifySignature(header string, payload []byte, secret string, now time.Time, tolerance time.Duration) error {
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return fmt.Errorf("%w: missing timestamp or signature", ErrInvalidSignature)
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	if d := now.Sub(time.Unix(unix, 0)); d > tolerance || d < -tolerance {
		return ErrStaleSignature
	}

	expected := []byte(computeSignature(secret, ts, payload))
	for _, sig := range sigs {
		if hmac.Equal(expected, []byte(sig)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Event types acted on
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentFailed       = "invoice.payment_failed"
	EventPaymentSucceeded    = "invoice.payment_succeeded"
)

// Event is a provider webhook event
type Event struct {
	ID     string
	Type   string
	Object gjson.Result
}

// ParseEvent extracts the id, type and data object from a webhook payload
func ParseEvent(payload []byte) (*Event, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedEvent)
	}
	root := gjson.ParseBytes(payload)
	e := &Event{
		ID:     root.Get("id").String(),
		Type:   root.Get("type").String(),
		Object: root.Get("data.object"),
	}
	if e.ID == "" || e.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}
	return e, nil
}
