package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_RegistersCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.ObserveRequest("GET", "/api/v1/users", "200", 0.01, false)
	m.ObserveRequest("GET", "/api/v1/users", "200", 2, true)
	m.DenylistError("check", "closed")
	m.TokenRevoked()

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/users", "200")); got != 2 {
		t.Errorf("requests total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.HTTPSlowRequests.WithLabelValues("GET", "/api/v1/users")); got != 1 {
		t.Errorf("slow requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DenylistErrorsTotal.WithLabelValues("check", "closed")); got != 1 {
		t.Errorf("denylist errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TokensRevokedTotal); got != 1 {
		t.Errorf("tokens revoked = %v, want 1", got)
	}
}

func TestNilMetrics_NoPanic(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", "/", "200", 0, true)
	m.RateLimited("/")
	m.AuthFailure("expired")
	m.PermissionDenied("user:delete")
	m.LoginAttempt("success")
	m.TokenIssued("access")
	m.TokenRevoked()
	m.DenylistError("check", "open")
	m.ObserveDenylist("check", 0.1)
}

func TestHandler_ExposesMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.LoginAttempt("invalid_credentials")

	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `apiflask_login_attempts_total{result="invalid_credentials"} 1`) {
		t.Errorf("metrics output missing login counter:\n%s", body)
	}
}
