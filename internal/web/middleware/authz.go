package middleware

import (
	"net/http"

	"github.com/fieldledger/fieldledger/internal/web/auth"
	"github.com/fieldledger/fieldledger/internal/web/response"
)

// RequireAdmin rejects requests from accounts without the admin role. It
// must run after Auth.
func RequireAdmin() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.AccountID(r.Context()); !ok {
				response.RenderUnauthorized(w, "")
				return
			}
			if !auth.IsAdmin(r.Context()) {
				response.RenderForbidden(w, "Administrator access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
