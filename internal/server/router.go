package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/swpuclaylee/APIFlask/internal/audit"
	audithandler "github.com/swpuclaylee/APIFlask/internal/audit/handler"
	healthhandler "github.com/swpuclaylee/APIFlask/internal/health/handler"
	identityhandler "github.com/swpuclaylee/APIFlask/internal/identity/handler"
	"github.com/swpuclaylee/APIFlask/internal/metrics"
	"github.com/swpuclaylee/APIFlask/internal/platform/httputil"
	rbachandler "github.com/swpuclaylee/APIFlask/internal/rbac/handler"
	"github.com/swpuclaylee/APIFlask/internal/server/middleware"
	userhandler "github.com/swpuclaylee/APIFlask/internal/user/handler"
)

// APIPrefix is the path prefix of every versioned endpoint.
const APIPrefix = "/api/v1"

// Deps holds the handlers and cross-cutting dependencies served by the router.
type Deps struct {
	// Auth guards protected routes. Required.
	Auth *middleware.Auth
	// Errors renders failures for the router's own 404/405/panic responses.
	Errors httputil.ErrorWriter
	Logger *logrus.Logger
	// Metrics may be nil; MetricsHandler, when set, is served on /metrics.
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	// AuditLogger records mutating calls. If nil, nothing is audited by the router.
	AuditLogger audit.AuditLogger
	// LoginLimiter throttles register and login. If nil, they are not throttled.
	LoginLimiter *middleware.RateLimiter

	Identity *identityhandler.Handlers
	Users    *userhandler.Handlers
	RBAC     *rbachandler.Handlers
	Audit    *audithandler.Handlers
	Health   *healthhandler.Server

	CORSOrigins    []string
	CORSPermissive bool
	// TrustedProxies may set the client IP through forwarding headers. Empty trusts the peer only.
	TrustedProxies middleware.TrustedProxies
	SlowRequest    time.Duration
	Clock          clock.Clock
	// Tracing wraps the handler with otelhttp so each request opens a server span.
	Tracing bool
}

// NewRouter builds the HTTP handler for the API.
//
// Route → handler mapping:
//   - /api/v1/auth/*                  → internal/identity/handler
//   - /api/v1/users*                  → internal/user/handler
//   - /api/v1/roles*, /permissions*   → internal/rbac/handler
//   - /api/v1/audit-logs*             → internal/audit/handler
//   - /health/*                       → internal/health/handler
//   - /metrics                        → Prometheus registry
func NewRouter(deps Deps) http.Handler {
	router := mux.NewRouter()
	logging := middleware.Logging(deps.Logger, deps.Metrics, deps.SlowRequest, deps.Clock)
	recoverer := middleware.Recover(deps.Logger, deps.Errors)

	router.Use(recoverer, logging, middleware.Audit(deps.AuditLogger, APIPrefix+"/auth/"))
	router.NotFoundHandler = recoverer(logging(http.HandlerFunc(notFound)))
	router.MethodNotAllowedHandler = recoverer(logging(http.HandlerFunc(methodNotAllowed)))

	if deps.Health != nil {
		deps.Health.RegisterRoutes(router)
	}
	if deps.MetricsHandler != nil {
		router.Handle("/metrics", deps.MetricsHandler).Methods("GET")
	}

	api := router.PathPrefix(APIPrefix).Subrouter()
	if deps.Identity != nil {
		deps.Identity.RegisterRoutes(api, deps.Auth, deps.LoginLimiter)
	}
	if deps.Users != nil {
		deps.Users.RegisterRoutes(api, deps.Auth)
	}
	if deps.RBAC != nil {
		deps.RBAC.RegisterRoutes(api, deps.Auth)
	}
	if deps.Audit != nil {
		deps.Audit.RegisterRoutes(api, deps.Auth)
	}

	var h http.Handler = router
	h = middleware.RequestContextFor(deps.TrustedProxies)(h)
	h = middleware.CORS(deps.CORSOrigins, deps.CORSPermissive)(h)
	if deps.Tracing {
		h = otelhttp.NewHandler(h, "http.server")
	}
	return h
}

// ErrorFields adds the caller's user id to error log lines, including those written by the
// router's own panic and 404/405 handlers outside the authenticated route.
func ErrorFields(r *http.Request) logrus.Fields {
	if id, ok := middleware.RequestUserID(r.Context()); ok {
		return logrus.Fields{"user_id": id}
	}
	return nil
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteFailure(w, http.StatusNotFound, "Resource not found", map[string]string{"path": r.URL.Path})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteFailure(w, http.StatusMethodNotAllowed, "Method not allowed", map[string]string{"method": r.Method})
}
