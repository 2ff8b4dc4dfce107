package request

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createClient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: `{"name":"Acme","email":"ops@acme.test"}`},
		{name: "empty", body: ``, wantErr: "request body is empty"},
		{name: "unknown field", body: `{"name":"Acme","phone":"1"}`, wantErr: "invalid JSON"},
		{name: "malformed", body: `{"name":`, wantErr: "invalid JSON"},
		{name: "multiple objects", body: `{"name":"a"}{"name":"b"}`, wantErr: "multiple JSON objects"},
		{name: "too large", body: `{"name":"` + strings.Repeat("x", DefaultMaxBodySize) + `"}`, wantErr: "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/clients", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			var got createClient
			err := DecodeJSON(w, r, &got)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Acme", got.Name)
		})
	}
}

func TestUUIDParam(t *testing.T) {
	id := uuid.New()
	router := chi.NewRouter()

	var got uuid.UUID
	var gotErr error
	router.Get("/clients/{id}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = UUIDParam(r, "id")
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/clients/"+id.String(), nil))
	require.NoError(t, gotErr)
	assert.Equal(t, id, got)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/clients/nope", nil))
	assert.Error(t, gotErr)
}

func TestQueryHelpers(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?year=2025&from=2025-01-31&at=2025-02-01T10:00:00Z&bad=abc", nil)

	year, err := QueryInt(r, "year", 0)
	require.NoError(t, err)
	assert.Equal(t, 2025, year)

	def, err := QueryInt(r, "missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, def)

	_, err = QueryInt(r, "bad", 0)
	assert.Error(t, err)

	from, ok, err := QueryDate(r, "from")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), from)

	_, ok, err = QueryDate(r, "to")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = QueryDate(r, "bad")
	assert.Error(t, err)

	at, ok, err := QueryTime(r, "at")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10, at.Hour())
}

func TestIntParam(t *testing.T) {
	router := chi.NewRouter()

	var got int
	var gotErr error
	router.Get("/mileage/{year}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = IntParam(r, "year")
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/mileage/2025", nil))
	require.NoError(t, gotErr)
	assert.Equal(t, 2025, got)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/mileage/next", nil))
	assert.Error(t, gotErr)
}
