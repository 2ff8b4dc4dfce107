package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/logging"
	webcontext "github.com/fieldledger/fieldledger/internal/web/context"
)

// LoggingConfig holds configuration for the access log middleware
type LoggingConfig struct {
	Logger *zap.Logger
	// SkipPaths are not logged (health checks, metrics scrapes)
	SkipPaths []string
}

// Logging logs one line per request, skipping /healthz and /metrics
func Logging(logger *zap.Logger) Middleware {
	return LoggingWithConfig(LoggingConfig{
		Logger:    logger,
		SkipPaths: []string{"/healthz", "/metrics"},
	})
}

// LoggingWithConfig creates the access log middleware. The request-scoped
// logger carrying the request id is stored in the context for handlers.
func LoggingWithConfig(config LoggingConfig) Middleware {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := logger.With(zap.String("request_id", webcontext.GetRequestID(r.Context())))
			r = r.WithContext(logging.WithContext(r.Context(), reqLogger))

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			if skip[r.URL.Path] {
				return
			}

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.status),
				zap.Duration("duration", time.Since(start)),
				zap.Int("bytes", rw.written),
				zap.String("remote", r.RemoteAddr),
			}
			if id, ok := webcontext.GetAccountID(r.Context()); ok {
				fields = append(fields, zap.String("account_id", id.String()))
			}

			switch {
			case rw.status >= 500:
				reqLogger.Error("request", fields...)
			case rw.status >= 400:
				reqLogger.Warn("request", fields...)
			default:
				reqLogger.Info("request", fields...)
			}
		})
	}
}

// responseWriter records the status and size of a response
type responseWriter struct {
	http.ResponseWriter
	status      int
	written     int
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.written += n
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the websocket upgrade through the logging wrapper
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.status = http.StatusSwitchingProtocols
	rw.wroteHeader = true
	return h.Hijack()
}
