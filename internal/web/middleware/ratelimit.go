package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/logging"
	"github.com/fieldledger/fieldledger/internal/web/auth"
	"github.com/fieldledger/fieldledger/internal/web/ratelimit"
	"github.com/fieldledger/fieldledger/internal/web/response"
)

// RateLimitKeyFunc extracts a rate limit key from a request
type RateLimitKeyFunc func(*http.Request) string

// RateLimitConfig holds configuration for rate limiting middleware
type RateLimitConfig struct {
	Limiter ratelimit.Limiter
	KeyFunc RateLimitKeyFunc
	// FailOpen lets requests through when the limiter errors
	FailOpen bool
	Logger   *zap.Logger
}

// RateLimit limits requests per client IP, failing open on limiter errors
func RateLimit(limiter ratelimit.Limiter, logger *zap.Logger) Middleware {
	return RateLimitWithConfig(RateLimitConfig{
		Limiter:  limiter,
		KeyFunc:  IPKeyFunc,
		FailOpen: true,
		Logger:   logger,
	})
}

// RateLimitWithConfig creates a rate limiting middleware with custom configuration
func RateLimitWithConfig(config RateLimitConfig) Middleware {
	if config.KeyFunc == nil {
		config.KeyFunc = IPKeyFunc
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := config.KeyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			info, err := config.Limiter.Allow(r.Context(), key)
			if err != nil {
				logging.FromContext(r.Context(), config.Logger).Warn("rate limiter unavailable", zap.Error(err))
				if config.FailOpen {
					next.ServeHTTP(w, r)
				} else {
					response.RenderServiceUnavailable(w, "")
				}
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

			if !info.Allowed {
				response.RenderTooManyRequests(w, info.RetryAfter(time.Now()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPKeyFunc keys on the client IP, preferring the first X-Forwarded-For hop
func IPKeyFunc(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return "ip:" + ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return "ip:" + xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// AccountKeyFunc keys on the authenticated account, falling back to the IP
func AccountKeyFunc(r *http.Request) string {
	if id, ok := auth.AccountID(r.Context()); ok {
		return "account:" + id.String()
	}
	return IPKeyFunc(r)
}
