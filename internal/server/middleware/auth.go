package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
	"github.com/swpuclaylee/APIFlask/internal/metrics"
	"github.com/swpuclaylee/APIFlask/internal/platform/httputil"
	"github.com/swpuclaylee/APIFlask/internal/platform/rbac"
	"github.com/swpuclaylee/APIFlask/internal/security"
)

const bearerPrefix = "bearer "

// TokenVerifier verifies a token of the expected kind, including the revocation check.
// token.Service satisfies it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string, expected security.Kind) (*security.Claims, error)
}

// Auth binds verified identities into requests and enforces permission requirements.
// It never mutates persistent state.
type Auth struct {
	tokens  TokenVerifier
	checker rbac.Checker
	errors  httputil.ErrorWriter
	metrics *metrics.Metrics
}

// NewAuth returns the access-control middleware. m may be nil.
func NewAuth(tokens TokenVerifier, checker rbac.Checker, errs httputil.ErrorWriter, m *metrics.Metrics) *Auth {
	return &Auth{tokens: tokens, checker: checker, errors: errs, metrics: m}
}

// Authenticate rejects requests without a valid, unrevoked access token with 401 and binds the
// caller's identity otherwise.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			a.metrics.AuthFailure("missing")
			httputil.WriteFailure(w, http.StatusUnauthorized, "Authorization token required", nil)
			return
		}
		claims, err := a.tokens.Verify(r.Context(), token, security.KindAccess)
		if err != nil {
			a.metrics.AuthFailure(failureReason(err))
			a.errors.Write(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identityFromClaims(claims))))
	})
}

// OptionalAuth binds the caller's identity when a valid access token is present and the anonymous
// sentinel otherwise. It never rejects.
func (a *Auth) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := anonymous
		if token := BearerToken(r); token != "" {
			if claims, err := a.tokens.Verify(r.Context(), token, security.KindAccess); err == nil {
				id = identityFromClaims(claims)
			}
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// Require returns middleware that runs after Authenticate and lets the request through only when
// the caller satisfies req. A missing requirement is 403 naming it; a store failure is 503.
func (a *Auth) Require(req rbac.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				a.metrics.AuthFailure("missing")
				httputil.WriteFailure(w, http.StatusUnauthorized, "Authorization token required", nil)
				return
			}
			if err := req.Check(r.Context(), a.checker, id.UserID); err != nil {
				if errors.Is(err, autherr.ErrInsufficientPermission) {
					a.metrics.PermissionDenied(req.String())
				}
				a.errors.Write(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Protect is Authenticate followed by Require(req).
func (a *Auth) Protect(req rbac.Requirement, h http.Handler) http.Handler {
	return a.Authenticate(a.Require(req)(h))
}

// BearerToken returns the Bearer token from the Authorization header, or "" if missing or malformed.
func BearerToken(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, autherr.ErrTokenExpired):
		return "expired"
	case errors.Is(err, autherr.ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, autherr.ErrTokenWrongKind):
		return "wrong_kind"
	case errors.Is(err, autherr.ErrTokenMalformed):
		return "malformed"
	default:
		return "other"
	}
}
