package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/logging"
	"github.com/fieldledger/fieldledger/internal/web/response"
)

// Recovery turns a handler panic into a 500 and logs the stack
func Recovery(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}

				logging.FromContext(r.Context(), logger).Error("panic recovered",
					zap.Any("panic", p),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()))

				response.RenderInternalError(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
