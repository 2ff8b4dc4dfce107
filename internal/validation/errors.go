// Package validation collects per-field input errors for rendering as a 422.
package validation

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"unicode/utf8"
)

// Errors contains validation errors keyed by field
type Errors struct {
	Fields map[string][]string `json:"fields"`
}

// New creates an empty Errors
func New() *Errors {
	return &Errors{Fields: make(map[string][]string)}
}

// Add adds a validation error for a specific field
func (e *Errors) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

// HasErrors returns true if there are any validation errors
func (e *Errors) HasErrors() bool {
	return len(e.Fields) > 0
}

// Err returns e as an error, or nil when nothing was recorded
func (e *Errors) Err() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// Error implements the error interface
func (e *Errors) Error() string {
	if !e.HasErrors() {
		return "validation failed"
	}

	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var messages []string
	for _, f := range fields {
		for _, msg := range e.Fields[f] {
			messages = append(messages, fmt.Sprintf("%s: %s", f, msg))
		}
	}
	return "validation failed: " + strings.Join(messages, "; ")
}

// Required records an error when value is blank
func (e *Errors) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		e.Add(field, "is required")
	}
}

// MaxLength records an error when value exceeds n characters
func (e *Errors) MaxLength(field, value string, n int) {
	if utf8.RuneCountInString(value) > n {
		e.Add(field, fmt.Sprintf("must be at most %d characters", n))
	}
}

// Email records an error when a non-empty value is not an address
func (e *Errors) Email(field, value string) {
	if value == "" {
		return
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		e.Add(field, "must be a valid email address")
	}
}

// NonNegative records an error when n is below zero
func (e *Errors) NonNegative(field string, n int64) {
	if n < 0 {
		e.Add(field, "must not be negative")
	}
}

// Positive records an error when n is not above zero
func (e *Errors) Positive(field string, n int64) {
	if n <= 0 {
		e.Add(field, "must be greater than zero")
	}
}

// Check records message against field when ok is false
func (e *Errors) Check(ok bool, field, message string) {
	if !ok {
		e.Add(field, message)
	}
}
