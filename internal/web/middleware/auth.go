package middleware

import (
	"net/http"
	"strings"

	"github.com/fieldledger/fieldledger/internal/web/auth"
	"github.com/fieldledger/fieldledger/internal/web/response"
)

// TokenValidator validates bearer tokens
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// AuthConfig holds configuration for authentication middleware
type AuthConfig struct {
	Tokens TokenValidator
	// QueryParam, when set, is consulted if no Authorization header is sent.
	// Browsers cannot set headers on websocket upgrades.
	QueryParam string
}

// Auth requires a valid bearer token and stores its claims in the context
func Auth(tokens TokenValidator) Middleware {
	return AuthWithConfig(AuthConfig{Tokens: tokens})
}

// AuthWithConfig creates an authentication middleware with custom configuration
func AuthWithConfig(config AuthConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok && config.QueryParam != "" {
				token = r.URL.Query().Get(config.QueryParam)
				ok = token != ""
			}
			if !ok {
				response.RenderUnauthorized(w, "Authorization required")
				return
			}

			claims, err := config.Tokens.Validate(token)
			if err != nil {
				response.RenderUnauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
