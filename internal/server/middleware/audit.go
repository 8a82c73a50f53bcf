package middleware

import (
	"net/http"
	"strings"

	"github.com/swpuclaylee/APIFlask/internal/audit"
)

// Audit records an audit log entry after each successful mutating call made by an authenticated
// caller. Routes under skipPrefixes (the auth endpoints, which audit themselves) are skipped.
// LogEvent is best-effort and never fails the request.
func Audit(logger audit.AuditLogger, skipPrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(sw, r)
			if logger == nil || !mutating(r.Method) || sw.code >= http.StatusBadRequest {
				return
			}
			for _, p := range skipPrefixes {
				if strings.HasPrefix(r.URL.Path, p) {
					return
				}
			}
			userID, ok := RequestUserID(r.Context())
			if !ok {
				return
			}
			ar := audit.ParseRoute(r.Method, routeTemplate(r))
			logger.LogEvent(r.Context(), userID, ar.Action, ar.Resource, "path="+r.URL.Path)
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
