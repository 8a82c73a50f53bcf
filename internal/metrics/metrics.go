// Package metrics holds the Prometheus collectors for the HTTP API and the access-control core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPSlowRequests    *prometheus.CounterVec
	HTTPRateLimited     *prometheus.CounterVec

	// Access-control metrics
	AuthFailuresTotal      *prometheus.CounterVec
	PermissionDenialsTotal *prometheus.CounterVec
	LoginAttemptsTotal     *prometheus.CounterVec
	TokensIssuedTotal      *prometheus.CounterVec
	TokensRevokedTotal     prometheus.Counter

	// Denylist metrics
	DenylistErrorsTotal  *prometheus.CounterVec
	DenylistCallDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiflask_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apiflask_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPSlowRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiflask_http_slow_requests_total",
				Help: "Requests slower than the configured threshold",
			},
			[]string{"method", "route"},
		),
		HTTPRateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiflask_http_rate_limited_total",
				Help: "Requests rejected by the per-client rate limiter",
			},
			[]string{"route"},
		),
		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiflask_auth_failures_total",
				Help: "Rejected bearer tokens by reason",
			},
			[]string{"reason"},
		),
		PermissionDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiflask_permission_denials_total",
				Help: "Requests rejected for a missing permission or role",
			},
			[]string{"requirement"},
		),
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiflask_login_attempts_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		),
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiflask_tokens_issued_total",
				Help: "Tokens issued by kind",
			},
			[]string{"kind"},
		),
		TokensRevokedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "apiflask_tokens_revoked_total",
				Help: "Tokens added to the denylist",
			},
		),
		DenylistErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiflask_denylist_errors_total",
				Help: "Denylist calls that failed or timed out, by operation and applied fail mode",
			},
			[]string{"operation", "mode"},
		),
		DenylistCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apiflask_denylist_call_duration_seconds",
				Help:    "Denylist call duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5},
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPSlowRequests,
		m.HTTPRateLimited,
		m.AuthFailuresTotal,
		m.PermissionDenialsTotal,
		m.LoginAttemptsTotal,
		m.TokensIssuedTotal,
		m.TokensRevokedTotal,
		m.DenylistErrorsTotal,
		m.DenylistCallDuration,
	)
	return m
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route, status string, seconds float64, slow bool) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
	if slow {
		m.HTTPSlowRequests.WithLabelValues(method, route).Inc()
	}
}

func (m *Metrics) RateLimited(route string) {
	if m == nil {
		return
	}
	m.HTTPRateLimited.WithLabelValues(route).Inc()
}

func (m *Metrics) AuthFailure(reason string) {
	if m == nil {
		return
	}
	m.AuthFailuresTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) PermissionDenied(requirement string) {
	if m == nil {
		return
	}
	m.PermissionDenialsTotal.WithLabelValues(requirement).Inc()
}

func (m *Metrics) LoginAttempt(result string) {
	if m == nil {
		return
	}
	m.LoginAttemptsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) TokenIssued(kind string) {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) TokenRevoked() {
	if m == nil {
		return
	}
	m.TokensRevokedTotal.Inc()
}

// DenylistError counts a failed denylist call and the fail mode that resolved it.
func (m *Metrics) DenylistError(operation, mode string) {
	if m == nil {
		return
	}
	m.DenylistErrorsTotal.WithLabelValues(operation, mode).Inc()
}

func (m *Metrics) ObserveDenylist(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.DenylistCallDuration.WithLabelValues(operation).Observe(seconds)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
