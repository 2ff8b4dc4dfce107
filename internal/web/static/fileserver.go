// Package static serves the compiled single-page application.
package static

import (
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/fieldledger/fieldledger/internal/web/response"
)

// Config holds configuration for the SPA file server
type Config struct {
	// Files is the build output, usually os.DirFS(server.static_dir)
	Files fs.FS
	// IndexFile is served for client-side routes
	IndexFile string
	// AssetPrefix marks fingerprinted files that may be cached forever
	AssetPrefix string
	// MaxAge is the asset cache lifetime in seconds
	MaxAge int
	// ReservedPrefixes never fall back to the index (API routes)
	ReservedPrefixes []string
}

// DefaultConfig returns the configuration for a Vite style build directory
func DefaultConfig(files fs.FS) Config {
	return Config{
		Files:            files,
		IndexFile:        "index.html",
		AssetPrefix:      "/assets/",
		MaxAge:           31536000,
		ReservedPrefixes: []string{"/api/", "/ws", "/healthz", "/metrics"},
	}
}

// SPA serves files from the build directory. Unknown paths without a file
// extension get index.html so the client router can handle them.
func SPA(config Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			response.RenderError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}

		for _, prefix := range config.ReservedPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				response.RenderNotFound(w, "")
				return
			}
		}

		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = config.IndexFile
		}

		if serveFile(w, r, config, name) {
			return
		}

		if path.Ext(name) != "" {
			http.NotFound(w, r)
			return
		}
		if !serveFile(w, r, config, config.IndexFile) {
			http.NotFound(w, r)
		}
	})
}

// serveFile writes the named file if it exists and is not a directory
func serveFile(w http.ResponseWriter, r *http.Request, config Config, name string) bool {
	f, err := config.Files.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return false
	}
	content, ok := f.(io.ReadSeeker)
	if !ok {
		return false
	}

	if name == config.IndexFile {
		w.Header().Set("Cache-Control", "no-cache")
	} else if config.AssetPrefix != "" && strings.HasPrefix("/"+name, config.AssetPrefix) {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d, immutable", config.MaxAge))
	}
	w.Header().Set("ETag", fmt.Sprintf(`W/"%x-%x"`, info.Size(), info.ModTime().Unix()))

	http.ServeContent(w, r, info.Name(), info.ModTime(), content)
	return true
}
