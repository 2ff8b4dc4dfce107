package profiling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldledger/fieldledger/internal/web/router"
)

func TestRegisterDisabled(t *testing.T) {
	r := router.New()
	Register(r, DefaultConfig())

	assert.Empty(t, r.Routes())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterEnabled(t *testing.T) {
	r := router.New()
	Register(r, Config{Enabled: true})

	patterns := map[string]bool{}
	for _, route := range r.Routes() {
		patterns[route.Pattern] = true
	}
	for _, p := range []string{"/debug/pprof", "/debug/pprof/heap", "/debug/pprof/goroutine", "/debug/pprof/stats"} {
		assert.True(t, patterns[p], p)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/goroutine?debug=1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goroutine")
}

func TestStatsHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	StatsHandler()(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Greater(t, stats.Goroutines, 0)
	assert.Greater(t, stats.NumCPU, 0)
	assert.NotZero(t, stats.Sys)
}
