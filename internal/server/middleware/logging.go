package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"github.com/swpuclaylee/APIFlask/internal/logging"
	"github.com/swpuclaylee/APIFlask/internal/metrics"
)

type statusWriter struct {
	http.ResponseWriter
	code  int
	wrote bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wrote {
		w.code = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.code = http.StatusOK
		w.wrote = true
	}
	return w.ResponseWriter.Write(b)
}

// Logging logs one line per request with method, path, status, duration and user id, and records
// request metrics. Requests slower than slow are logged at WARN. clk may be nil.
func Logging(logger *logrus.Logger, m *metrics.Metrics, slow time.Duration, clk clock.Clock) func(http.Handler) http.Handler {
	log := logging.OrDiscard(logger).WithField("component", "http")
	if clk == nil {
		clk = clock.WallClock
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
			start := clk.Now()
			next.ServeHTTP(sw, r)
			d := clk.Now().Sub(start)

			route := routeTemplate(r)
			isSlow := slow > 0 && d > slow
			m.ObserveRequest(r.Method, route, strconv.Itoa(sw.code), d.Seconds(), isSlow)

			userID := Anonymous
			if info := requestInfoFrom(r.Context()); info != nil && info.userID != "" {
				userID = info.userID
			}
			entry := log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      sw.code,
				"duration_ms": d.Milliseconds(),
				"user_id":     userID,
				"request_id":  GetRequestID(r.Context()),
			})
			if isSlow {
				entry.Warn("slow request")
				return
			}
			entry.Info("request")
		})
	}
}

// routeTemplate returns the mux path template, which keeps metric labels bounded.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
