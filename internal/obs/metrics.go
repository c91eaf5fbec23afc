package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tessera.id/internal/auth"
)

// Metrics owns a private registry so tests and multiple servers in one
// process do not collide.
type Metrics struct {
	reg *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	tokensIssued       *prometheus.CounterVec
	tokenVerifications *prometheus.CounterVec
	guardDecisions     *prometheus.CounterVec
	buildInfo          *prometheus.GaugeVec
}

var _ auth.TokenObserver = (*Metrics)(nil)

func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokens_issued_total",
			Help: "Access tokens issued, by principal kind.",
		}, []string{"kind"}),
		tokenVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "token_verifications_total",
			Help: "Token verifications, by principal kind and result.",
		}, []string{"kind", "result"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admin_guard_decisions_total",
			Help: "Guard decisions on protected routes, by outcome.",
		}, []string{"outcome"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Tessera build information.",
		}, []string{"version", "commit"}),
	}
	m.reg.MustRegister(
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.tokensIssued, m.tokenVerifications, m.guardDecisions, m.buildInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// SetBuildInfo publishes build_info{version,commit} 1.
func (m *Metrics) SetBuildInfo(version, commit string) {
	m.buildInfo.WithLabelValues(version, commit).Set(1)
}

func (m *Metrics) TokenIssued(kind auth.Kind) {
	m.tokensIssued.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) TokenVerified(kind auth.Kind, ok bool) {
	result := "invalid"
	if ok {
		result = "valid"
	}
	m.tokenVerifications.WithLabelValues(kind.String(), result).Inc()
}

// GuardDecision counts one guard outcome ("allowed", "forbidden", ...).
func (m *Metrics) GuardDecision(outcome string) {
	m.guardDecisions.WithLabelValues(outcome).Inc()
}

// Instrument records in-flight, count and latency per chi route pattern.
// Unmatched paths share one label to keep cardinality bounded.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := RoutePattern(r)
		status := strconv.Itoa(sw.code)
		m.httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

// RoutePattern returns the matched chi pattern, or "unmatched".
func RoutePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusWriter struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.code = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
