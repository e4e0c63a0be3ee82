package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/academia-core/internal/auth"
)

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "academia"

// Login outcomes recorded by loginResults.
const (
	loginSuccess            = "success"
	loginInvalidCredentials = "invalid_credentials"
	loginError              = "error"
)

// metrics holds the server's Prometheus collectors. They are registered on
// a server-owned registry so tests can build many servers in one process.
type metrics struct {
	registry      *prometheus.Registry
	gateDecisions *prometheus.CounterVec
	loginResults  *prometheus.CounterVec
	roleDenials   *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	wsClients     prometheus.Gauge
}

func newMetrics(registry *prometheus.Registry) *metrics {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &metrics{
		registry: registry,

		gateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "auth",
			Name:      "gate_decisions_total",
			Help:      "Authentication gate decisions by transport, final state and reason",
		}, []string{"transport", "state", "reason"}),

		loginResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by result",
		}, []string{"result"}),

		roleDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "auth",
			Name:      "role_denials_total",
			Help:      "Requests refused by the role gate, by transport and operation",
		}, []string{"transport", "operation"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration by method, route pattern and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		wsClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "websocket",
			Name:      "connected_clients",
			Help:      "Number of connected WebSocket clients",
		}),
	}
}

// observeGate is the auth.Observer for the server's gate.
func (m *metrics) observeGate(transport auth.Transport, state auth.GateState, reason string) {
	m.gateDecisions.WithLabelValues(transport.String(), state.String(), reason).Inc()
}

// handler serves the registry in the Prometheus exposition format.
func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// metricsMiddleware records request duration labelled by chi route pattern,
// so path parameters do not explode label cardinality.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		s.metrics.httpDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).
			Observe(time.Since(start).Seconds())
	})
}
