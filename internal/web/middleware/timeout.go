package middleware

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/fieldledger/fieldledger/internal/web/response"
)

// ErrRequestTimeout is rendered when a handler exceeds its deadline
var ErrRequestTimeout = errors.New("request timed out")

// Timeout bounds handler execution. Handlers see a context with the
// deadline; if they have not finished when it passes the client gets a 504.
// Do not wrap websocket or streaming routes.
func Timeout(timeout time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			tw := &timeoutWriter{w: w, header: make(http.Header)}
			done := make(chan struct{})
			panicChan := make(chan interface{}, 1)

			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicChan <- p
					}
				}()
				next.ServeHTTP(tw, r.WithContext(ctx))
				close(done)
			}()

			select {
			case <-done:
				tw.flush()
			case p := <-panicChan:
				panic(p)
			case <-ctx.Done():
				if tw.expire() && errors.Is(ctx.Err(), context.DeadlineExceeded) {
					response.RenderError(w, http.StatusGatewayTimeout, ErrRequestTimeout)
				}
			}
		})
	}
}

// timeoutWriter buffers the response so nothing reaches the client once the
// deadline has passed
type timeoutWriter struct {
	w      http.ResponseWriter
	mu     sync.Mutex
	header http.Header
	buf    []byte
	status int
	done   bool
}

func (tw *timeoutWriter) Header() http.Header {
	return tw.header
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.done {
		return 0, http.ErrHandlerTimeout
	}
	if tw.status == 0 {
		tw.status = http.StatusOK
	}
	tw.buf = append(tw.buf, b...)
	return len(b), nil
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.done || tw.status != 0 {
		return
	}
	tw.status = code
}

// expire marks the writer timed out. It reports false if the handler
// already finished.
func (tw *timeoutWriter) expire() bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.done {
		return false
	}
	tw.done = true
	return true
}

func (tw *timeoutWriter) flush() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.done = true

	dst := tw.w.Header()
	for k, v := range tw.header {
		dst[k] = v
	}
	if tw.status == 0 {
		tw.status = http.StatusOK
	}
	tw.w.WriteHeader(tw.status)
	_, _ = tw.w.Write(tw.buf)
}
