// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fieldledger"

var (
	// Registry holds the application collectors
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "route"})

	jobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Background job executions by outcome.",
	}, []string{"type", "outcome"})

	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "run_duration_seconds",
		Help:      "Duration of background job executions.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"type"})

	webhookEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "webhook_events_total",
		Help:      "Payment provider webhook events by type and outcome.",
	}, []string{"type", "outcome"})

	gatewayCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "gateway_calls_total",
		Help:      "Calls to the payment provider by operation and outcome.",
	}, []string{"operation", "outcome"})

	breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "circuit_state",
		Help:      "Payment provider circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"name"})

	referralRewards = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "referral",
		Name:      "rewards_total",
		Help:      "Referral reward issuance by outcome.",
	}, []string{"outcome"})

	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "connections",
		Help:      "Open websocket connections.",
	})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		jobRuns,
		jobDuration,
		webhookEvents,
		gatewayCalls,
		breakerState,
		referralRewards,
		wsConnections,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler exposes the registry
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Instrument records request counts and latency labelled by chi route pattern
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := routePattern(r)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// RecordJob records one job execution
func RecordJob(jobType, outcome string, d time.Duration) {
	jobRuns.WithLabelValues(jobType, outcome).Inc()
	jobDuration.WithLabelValues(jobType).Observe(d.Seconds())
}

// RecordWebhook counts a webhook event
func RecordWebhook(eventType, outcome string) {
	if eventType == "" {
		eventType = "unknown"
	}
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordGatewayCall counts a payment provider call
func RecordGatewayCall(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	gatewayCalls.WithLabelValues(operation, outcome).Inc()
}

// SetBreakerState publishes a circuit breaker state
func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordReward counts a referral reward outcome
func RecordReward(outcome string) {
	referralRewards.WithLabelValues(outcome).Inc()
}

// ConnectionOpened increments the websocket gauge
func ConnectionOpened() { wsConnections.Inc() }

// ConnectionClosed decrements the websocket gauge
func ConnectionClosed() { wsConnections.Dec() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}
