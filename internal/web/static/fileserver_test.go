package static

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
)

func testFS() fstest.MapFS {
	mod := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return fstest.MapFS{
		"index.html":          {Data: []byte("<html>app</html>"), ModTime: mod},
		"assets/app-3f2a.js":  {Data: []byte("console.log(1)"), ModTime: mod},
		"favicon.ico":         {Data: []byte{0, 0, 1}, ModTime: mod},
		"assets/nested/x.css": {Data: []byte("body{}"), ModTime: mod},
	}
}

func get(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestSPA(t *testing.T) {
	h := SPA(DefaultConfig(testFS()))

	tests := []struct {
		name   string
		target string
		status int
		body   string
		cache  string
	}{
		{"root", "/", http.StatusOK, "<html>app</html>", "no-cache"},
		{"client route", "/invoices/42", http.StatusOK, "<html>app</html>", "no-cache"},
		{"asset", "/assets/app-3f2a.js", http.StatusOK, "console.log(1)", "public, max-age=31536000, immutable"},
		{"missing asset", "/assets/gone.js", http.StatusNotFound, "", ""},
		{"api is not the SPA", "/api/unknown", http.StatusNotFound, "", ""},
		{"traversal stays inside root", "/../../etc/passwd", http.StatusOK, "<html>app</html>", "no-cache"},
		{"directory falls back", "/assets/nested", http.StatusOK, "<html>app</html>", "no-cache"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(h, http.MethodGet, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
			if tt.cache != "" {
				assert.Equal(t, tt.cache, rec.Header().Get("Cache-Control"))
			}
		})
	}
}

func TestSPA_MethodNotAllowed(t *testing.T) {
	rec := get(SPA(DefaultConfig(testFS())), http.MethodPost, "/")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSPA_ConditionalGet(t *testing.T) {
	h := SPA(DefaultConfig(testFS()))
	first := get(h, http.MethodGet, "/favicon.ico")
	etag := first.Header().Get("ETag")
	assert.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/favicon.ico", nil)
	req.Header.Set("If-None-Match", etag)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
}
