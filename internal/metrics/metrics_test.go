package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/api/clients/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/clients/{id}", "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/clients/42", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/clients/{id}", "418")))
}

func TestRecorders(t *testing.T) {
	RecordJob("invoices.sweep_overdue", "success", 20*time.Millisecond)
	RecordWebhook("", "ignored")
	RecordGatewayCall("refund", errors.New("boom"))
	SetBreakerState("payments", 2)
	RecordReward("rewarded")

	assert.Equal(t, 2.0, testutil.ToFloat64(breakerState.WithLabelValues("payments")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(webhookEvents.WithLabelValues("unknown", "ignored")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(gatewayCalls.WithLabelValues("refund", "error")), 1.0)
}

func TestHandlerExposesMetrics(t *testing.T) {
	ConnectionOpened()
	defer ConnectionClosed()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "fieldledger_realtime_connections"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
