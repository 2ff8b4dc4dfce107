package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fieldledger/fieldledger/internal/validation"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ValidationErrorResponse represents validation errors
type ValidationErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Code    string              `json:"code"`
	Fields  map[string][]string `json:"fields"`
}

// RenderError renders a standard error response
func RenderError(w http.ResponseWriter, statusCode int, err error) {
	RenderErrorWithDetails(w, statusCode, err, "", nil)
}

// RenderErrorWithCode renders an error with a specific error code
func RenderErrorWithCode(w http.ResponseWriter, statusCode int, err error, code string) {
	RenderErrorWithDetails(w, statusCode, err, code, nil)
}

// RenderErrorWithDetails renders an error with additional details. Validation
// errors are always rendered as 422 with per-field messages.
func RenderErrorWithDetails(w http.ResponseWriter, statusCode int, err error, code string, details map[string]interface{}) {
	var verr *validation.Errors
	if errors.As(err, &verr) {
		RenderValidationError(w, verr)
		return
	}

	if code == "" {
		code = errorCodeFromStatus(statusCode)
	}

	writeJSON(w, statusCode, &ErrorResponse{
		Error:   "error",
		Message: err.Error(),
		Code:    code,
		Details: details,
	})
}

// RenderValidationError renders validation errors
func RenderValidationError(w http.ResponseWriter, verr *validation.Errors) {
	writeJSON(w, http.StatusUnprocessableEntity, &ValidationErrorResponse{
		Error:   "validation_failed",
		Message: "The request contains invalid data",
		Code:    "validation_error",
		Fields:  verr.Fields,
	})
}

// RenderBadRequest renders a 400 Bad Request error
func RenderBadRequest(w http.ResponseWriter, message string) {
	RenderError(w, http.StatusBadRequest, errors.New(message))
}

// RenderUnauthorized renders a 401 Unauthorized error
func RenderUnauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Authentication required"
	}
	RenderError(w, http.StatusUnauthorized, errors.New(message))
}

// RenderPaymentRequired renders a 402 carrying the SPA route to send the
// account to
func RenderPaymentRequired(w http.ResponseWriter, message, redirectTo string, details map[string]interface{}) {
	if message == "" {
		message = "Upgrade required"
	}
	if details == nil {
		details = map[string]interface{}{}
	}
	details["redirect_to"] = redirectTo
	RenderErrorWithDetails(w, http.StatusPaymentRequired, errors.New(message), "", details)
}

// RenderForbidden renders a 403 Forbidden error
func RenderForbidden(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Access denied"
	}
	RenderError(w, http.StatusForbidden, errors.New(message))
}

// RenderNotFound renders a 404 Not Found error
func RenderNotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RenderError(w, http.StatusNotFound, errors.New(message))
}

// RenderConflict renders a 409 Conflict error
func RenderConflict(w http.ResponseWriter, message string) {
	RenderError(w, http.StatusConflict, errors.New(message))
}

// RenderTooManyRequests renders a 429 Too Many Requests error
func RenderTooManyRequests(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	RenderError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
}

// RenderInternalError renders a 500 without exposing err to the client
func RenderInternalError(w http.ResponseWriter) {
	RenderError(w, http.StatusInternalServerError, errors.New("Internal server error"))
}

// RenderServiceUnavailable renders a 503 Service Unavailable error
func RenderServiceUnavailable(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	RenderError(w, http.StatusServiceUnavailable, errors.New(message))
}

// errorCodeFromStatus maps HTTP status codes to error codes
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusPaymentRequired:
		return "payment_required"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestTimeout:
		return "request_timeout"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusBadGateway:
		return "bad_gateway"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	case http.StatusGatewayTimeout:
		return "gateway_timeout"
	default:
		return "error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
