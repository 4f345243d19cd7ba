package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the service's Prometheus metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authzDecisions  *prometheus.CounterVec
	tokensIssued    *prometheus.CounterVec
	authFailures    *prometheus.CounterVec
}

// NewMetrics builds the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flashy_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flashy_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flashy_authz_decisions_total",
		Help: "Authorization guard decisions by policy and outcome.",
	}, []string{"policy", "decision"})
	issued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flashy_tokens_issued_total",
		Help: "Tokens minted by flow.",
	}, []string{"flow"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flashy_auth_failures_total",
		Help: "Rejected login, oauth and refresh attempts by flow.",
	}, []string{"flow"})
	registry.MustRegister(requests, duration, decisions, issued, failures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		authzDecisions:  decisions,
		tokensIssued:    issued,
		authFailures:    failures,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveDecision satisfies rbac.DecisionObserver.
func (m *Metrics) ObserveDecision(policy, decision string) {
	if m == nil {
		return
	}
	m.authzDecisions.WithLabelValues(policy, decision).Inc()
}

// ObserveIssued counts minted tokens for flow ("login", "oauth" or "refresh").
func (m *Metrics) ObserveIssued(flow string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(flow).Inc()
}

// ObserveAuthFailure counts rejected attempts for flow.
func (m *Metrics) ObserveAuthFailure(flow string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(flow).Inc()
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
