// Package metrics exposes Prometheus counters for the HTTP API and the
// form/response activity behind it.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	domain   *prometheus.CounterVec
}

// Event names counted by Record.
const (
	AccountRegistered = "account_registered"
	LoginSucceeded    = "login_succeeded"
	LoginFailed       = "login_failed"
	FormCreated       = "form_created"
	FormDeleted       = "form_deleted"
	ResponseSubmitted = "response_submitted"
)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qforms",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "qforms",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qforms",
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
		domain: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qforms",
			Name:      "events_total",
			Help:      "Domain events such as form creation and response submission.",
		}, []string{"event"}),
	}
	m.registry.MustRegister(m.requests, m.duration, m.inFlight, m.domain)
	return m
}

// Record counts one domain event. A nil *Metrics records nothing.
func (m *Metrics) Record(event string) {
	if m == nil {
		return
	}
	m.domain.WithLabelValues(event).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware labels requests by chi route pattern rather than raw path so
// that form ids do not explode the label space.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
