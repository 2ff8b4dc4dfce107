// Package request decodes request bodies, path parameters and query strings.
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// DefaultMaxBodySize caps JSON bodies
const DefaultMaxBodySize = 1 << 20

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

// DecodeJSON parses a JSON request body into target, rejecting unknown
// fields and trailing data
func DecodeJSON(w http.ResponseWriter, r *http.Request, target interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, DefaultMaxBodySize)
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if decoder.More() {
		return fmt.Errorf("request body contains multiple JSON objects")
	}
	return nil
}

// UUIDParam reads a UUID path parameter
func UUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return id, nil
}

// QueryInt reads an integer query parameter, falling back to def when absent
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return n, nil
}

// QueryDate reads a YYYY-MM-DD query parameter. ok is false when absent.
func QueryDate(r *http.Request, name string) (t time.Time, ok bool, err error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, false, nil
	}
	t, err = time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid %s: expected YYYY-MM-DD", name)
	}
	return t, true, nil
}

// QueryTime reads an RFC 3339 query parameter. ok is false when absent.
func QueryTime(r *http.Request, name string) (t time.Time, ok bool, err error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, false, nil
	}
	t, err = time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid %s: expected RFC 3339 timestamp", name)
	}
	return t, true, nil
}

// IntParam reads an integer path parameter
func IntParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return n, nil
}
