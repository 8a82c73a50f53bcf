// Package handler serves liveness and readiness probes.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/swpuclaylee/APIFlask/internal/platform/httputil"
)

const probeTimeout = 2 * time.Second

// Pinger reports database connectivity. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// DenylistChecker reports revocation store connectivity. *denylist.Checker satisfies it.
type DenylistChecker interface {
	Ping(ctx context.Context) error
}

// Server serves /health/live and /health/ready.
type Server struct {
	db       Pinger
	denylist DenylistChecker
}

// NewServer returns the health handlers. db and denylist may be nil; nil dependencies are not probed.
func NewServer(db Pinger, denylist DenylistChecker) *Server {
	return &Server{db: db, denylist: denylist}
}

// RegisterRoutes registers the probes on router.
func (s *Server) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health/live", s.Live).Methods("GET")
	router.HandleFunc("/health/ready", s.Ready).Methods("GET")
}

type status struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Live reports that the process is serving.
func (s *Server) Live(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteSuccess(w, status{Status: "ok"})
}

// Ready probes Postgres and the revocation store. Any failure is 503.
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	checks := map[string]string{}
	ready := true
	probe := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			checks[name] = "error: " + err.Error()
			ready = false
			return
		}
		checks[name] = "ok"
	}
	if s.db != nil {
		probe("postgres", s.db.PingContext)
	}
	if s.denylist != nil {
		probe("denylist", s.denylist.Ping)
	}
	if !ready {
		httputil.WriteFailure(w, http.StatusServiceUnavailable, "Service not ready", status{Status: "unavailable", Checks: checks})
		return
	}
	_ = httputil.WriteSuccess(w, status{Status: "ok", Checks: checks})
}
