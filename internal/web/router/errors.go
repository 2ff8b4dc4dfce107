package router

import (
	"fmt"
	"net/http"

	"github.com/fieldledger/fieldledger/internal/web/response"
)

// NotFoundHandler renders unmatched routes as a JSON 404
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.RenderNotFound(w, fmt.Sprintf("No route for %s %s", r.Method, r.URL.Path))
	}
}

// MethodNotAllowedHandler renders a JSON 405
func MethodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.RenderError(w, http.StatusMethodNotAllowed,
			fmt.Errorf("Method %s is not allowed for this resource", r.Method))
	}
}
