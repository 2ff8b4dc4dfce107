// Package appstate decides which onboarding or subscription phase an account
// is in and what that phase lets the account see and do.
package appstate

import (
	"fmt"
	"time"
)

// State is an account's onboarding/subscription phase
type State string

const (
	Install         State = "install"
	SetupIncomplete State = "setup_incomplete"
	Base            State = "base"
	Trial           State = "trial"
	Paid            State = "paid"
	AdminPreview    State = "admin_preview"
)

// All lists every state in lifecycle order
var All = []State{Install, SetupIncomplete, Base, Trial, Paid, AdminPreview}

// Parse converts a string into a State
func Parse(s string) (State, error) {
	for _, st := range All {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown app state %q", s)
}

func (s State) String() string {
	return string(s)
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *State) UnmarshalText(text []byte) error {
	st, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Subscription statuses as stored on the account
const (
	SubscriptionNone     = "none"
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

// Snapshot is everything Resolve needs to know about an account
type Snapshot struct {
	Onboarded          bool       `json:"onboarded"`
	SetupComplete      bool       `json:"setup_complete"`
	SubscriptionStatus string     `json:"subscription_status"`
	PastDueSince       *time.Time `json:"past_due_since,omitempty"`
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty"`
	Admin              bool       `json:"admin"`
	Preview            bool       `json:"preview"`
	Flags              []string   `json:"flags"`
}

// DefaultPastDueGrace is how long a past_due subscription keeps paid access
const DefaultPastDueGrace = 7 * 24 * time.Hour

// Policy holds the tunables of state resolution
type Policy struct {
	PastDueGrace time.Duration
}

// DefaultPolicy returns the standard resolution policy
func DefaultPolicy() Policy {
	return Policy{PastDueGrace: DefaultPastDueGrace}
}

// Resolve picks the account's state using the default policy
func Resolve(s Snapshot, now time.Time) State {
	return DefaultPolicy().Resolve(s, now)
}

// Resolve picks the account's state. Earlier rules win.
func (p Policy) Resolve(s Snapshot, now time.Time) State {
	switch {
	case s.Admin && s.Preview:
		return AdminPreview
	case !s.Onboarded:
		return Install
	case !s.SetupComplete:
		return SetupIncomplete
	case p.subscribed(s, now):
		return Paid
	case s.TrialEndsAt != nil && s.TrialEndsAt.After(now):
		return Trial
	default:
		return Base
	}
}

func (p Policy) subscribed(s Snapshot, now time.Time) bool {
	switch s.SubscriptionStatus {
	case SubscriptionActive:
		return true
	case SubscriptionPastDue:
		if s.PastDueSince == nil {
			return true
		}
		return now.Before(s.PastDueSince.Add(p.PastDueGrace))
	default:
		return false
	}
}
