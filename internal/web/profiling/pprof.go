// Package profiling exposes pprof and runtime statistics. The endpoints leak
// goroutine stacks and heap contents, so callers mount them behind admin auth.
package profiling

import (
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/fieldledger/fieldledger/internal/web/response"
	"github.com/fieldledger/fieldledger/internal/web/router"
)

// Config holds profiling configuration
type Config struct {
	Enabled bool
	// Path is the URL prefix for the endpoints (default: "/debug/pprof")
	Path string
	// BlockRate sets the block profiling rate (0 = disabled)
	BlockRate int
	// MutexFraction sets the mutex profiling fraction (0 = disabled)
	MutexFraction int
}

// DefaultConfig returns a disabled configuration rooted at /debug/pprof
func DefaultConfig() Config {
	return Config{Path: "/debug/pprof"}
}

// Register mounts the pprof handlers and a JSON stats endpoint on r
func Register(r *router.Router, cfg Config) {
	if !cfg.Enabled {
		return
	}
	if cfg.Path == "" {
		cfg.Path = "/debug/pprof"
	}

	runtime.SetBlockProfileRate(cfg.BlockRate)
	runtime.SetMutexProfileFraction(cfg.MutexFraction)

	r.Route(cfg.Path, func(p *router.Router) {
		p.Get("/", pprof.Index)
		p.Get("/cmdline", pprof.Cmdline)
		p.Get("/profile", pprof.Profile)
		p.Get("/symbol", pprof.Symbol)
		p.Get("/trace", pprof.Trace)
		p.Get("/stats", StatsHandler())
		for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			p.Get("/"+name, pprof.Handler(name).ServeHTTP)
		}
	})
}

// Stats is a point-in-time runtime summary
type Stats struct {
	Goroutines int    `json:"goroutines"`
	NumCPU     int    `json:"num_cpu"`
	Alloc      uint64 `json:"alloc_bytes"`
	TotalAlloc uint64 `json:"total_alloc_bytes"`
	Sys        uint64 `json:"sys_bytes"`
	NumGC      uint32 `json:"num_gc"`
}

// RuntimeStats returns current runtime statistics
func RuntimeStats() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Stats{
		Goroutines: runtime.NumGoroutine(),
		NumCPU:     runtime.NumCPU(),
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
	}
}

// StatsHandler serves RuntimeStats as JSON
func StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.RenderOK(w, RuntimeStats())
	}
}
