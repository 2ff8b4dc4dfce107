// Package router wraps chi with route introspection so the registered API
// surface can be listed without starting a server.
package router

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/fieldledger/fieldledger/internal/web/middleware"
)

// RouteInfo describes a registered route
type RouteInfo struct {
	Method     string   `json:"method"`
	Pattern    string   `json:"pattern"`
	Parameters []string `json:"parameters,omitempty"`
	Protected  bool     `json:"protected"`
}

// table is shared by a router and every group derived from it
type table struct {
	mu     sync.Mutex
	routes []RouteInfo
}

func (t *table) add(info RouteInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes = append(t.routes, info)
}

// Router manages HTTP routing using chi
type Router struct {
	mux       chi.Router
	prefix    string
	protected bool
	table     *table
}

// New creates a router with JSON 404 and 405 handlers
func New() *Router {
	mux := chi.NewRouter()
	mux.NotFound(NotFoundHandler())
	mux.MethodNotAllowed(MethodNotAllowedHandler())
	return &Router{mux: mux, table: &table{}}
}

func (r *Router) derive(mux chi.Router, prefix string) *Router {
	return &Router{mux: mux, prefix: prefix, protected: r.protected, table: r.table}
}

// Use appends middleware to the router's stack
func (r *Router) Use(mws ...middleware.Middleware) {
	for _, mw := range mws {
		r.mux.Use(mw)
	}
}

// With returns an inline router that applies mws to routes registered on it
func (r *Router) With(mws ...middleware.Middleware) *Router {
	fns := make([]func(http.Handler) http.Handler, len(mws))
	for i, mw := range mws {
		fns[i] = mw
	}
	return r.derive(r.mux.With(fns...), r.prefix)
}

// Group registers routes that share middleware but not a prefix
func (r *Router) Group(fn func(*Router)) {
	r.mux.Group(func(m chi.Router) {
		fn(r.derive(m, r.prefix))
	})
}

// Route registers routes under prefix
func (r *Router) Route(prefix string, fn func(*Router)) {
	r.mux.Route(prefix, func(m chi.Router) {
		fn(r.derive(m, r.prefix+prefix))
	})
}

// Protected returns a group whose routes are reported as requiring auth.
// The caller still installs the auth middleware.
func (r *Router) Protected(fn func(*Router)) {
	r.mux.Group(func(m chi.Router) {
		sub := r.derive(m, r.prefix)
		sub.protected = true
		fn(sub)
	})
}

// Get registers a GET route
func (r *Router) Get(pattern string, h http.HandlerFunc) {
	r.handle(http.MethodGet, pattern, h)
}

// Post registers a POST route
func (r *Router) Post(pattern string, h http.HandlerFunc) {
	r.handle(http.MethodPost, pattern, h)
}

// Put registers a PUT route
func (r *Router) Put(pattern string, h http.HandlerFunc) {
	r.handle(http.MethodPut, pattern, h)
}

// Patch registers a PATCH route
func (r *Router) Patch(pattern string, h http.HandlerFunc) {
	r.handle(http.MethodPatch, pattern, h)
}

// Delete registers a DELETE route
func (r *Router) Delete(pattern string, h http.HandlerFunc) {
	r.handle(http.MethodDelete, pattern, h)
}

// Handle registers h for every method on pattern
func (r *Router) Handle(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
	r.record("*", pattern)
}

// NotFound replaces the 404 handler
func (r *Router) NotFound(h http.HandlerFunc) {
	r.mux.NotFound(h)
}

func (r *Router) handle(method, pattern string, h http.HandlerFunc) {
	r.mux.Method(method, pattern, h)
	r.record(method, pattern)
}

func (r *Router) record(method, pattern string) {
	full := r.prefix + pattern
	if pattern == "/" && r.prefix != "" {
		full = r.prefix
	}
	r.table.add(RouteInfo{
		Method:     method,
		Pattern:    full,
		Parameters: extractParameters(full),
		Protected:  r.protected,
	})
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Routes returns the registered routes ordered by pattern then method
func (r *Router) Routes() []RouteInfo {
	r.table.mu.Lock()
	out := make([]RouteInfo, len(r.table.routes))
	copy(out, r.table.routes)
	r.table.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pattern != out[j].Pattern {
			return out[i].Pattern < out[j].Pattern
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// extractParameters returns the names of {param} and {param:regex} segments
func extractParameters(pattern string) []string {
	var params []string
	for _, seg := range strings.Split(pattern, "/") {
		if !strings.HasPrefix(seg, "{") || !strings.HasSuffix(seg, "}") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(seg, "{"), "}")
		if i := strings.IndexByte(name, ':'); i >= 0 {
			name = name[:i]
		}
		params = append(params, name)
	}
	return params
}
