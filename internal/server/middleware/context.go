package middleware

import (
	"context"
	"time"

	"github.com/swpuclaylee/APIFlask/internal/security"
)

// Anonymous is the user id logged and bound for requests without a verified identity.
const Anonymous = "anonymous"

type contextKey struct{ name string }

var (
	identityKey = contextKey{"identity"}
	requestKey  = contextKey{"request"}
)

// Identity is the verified caller bound into the request context by Authenticate.
type Identity struct {
	UserID    string
	Username  string
	IsAdmin   bool
	Email     string
	JTI       string
	ExpiresAt time.Time
	// Claims are the verified access token claims, used by logout and password change.
	Claims *security.Claims
}

// IsAnonymous reports whether id is the anonymous sentinel.
func (id *Identity) IsAnonymous() bool {
	return id == nil || id.UserID == Anonymous
}

var anonymous = &Identity{UserID: Anonymous}

// identityFromClaims builds the Identity carried by claims.
func identityFromClaims(c *security.Claims) *Identity {
	id := &Identity{
		UserID:   c.UserID(),
		Username: c.Username,
		IsAdmin:  c.IsAdmin,
		Email:    c.Email,
		JTI:      c.ID,
		Claims:   c,
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id
}

// WithIdentity returns a context carrying id. The request's log record picks up the user id too.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	if info := requestInfoFrom(ctx); info != nil && id != nil {
		info.userID = id.UserID
	}
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity bound to ctx and true, or the anonymous sentinel and false.
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	if !ok || id == nil || id.IsAnonymous() {
		return anonymous, false
	}
	return id, true
}

// GetUserID returns the caller's user id and true if authenticated; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	id, ok := IdentityFrom(ctx)
	if !ok {
		return "", false
	}
	return id.UserID, true
}

// RequestUserID returns the user id authenticated anywhere in the request's chain and true, or "",
// false. Unlike GetUserID it sees an identity bound by an inner handler from outer middleware.
func RequestUserID(ctx context.Context) (string, bool) {
	if info := requestInfoFrom(ctx); info != nil && info.userID != "" && info.userID != Anonymous {
		return info.userID, true
	}
	return GetUserID(ctx)
}

// requestInfo is shared by the outer request middleware and inner handlers so the final log line
// can see the identity bound further down the chain.
type requestInfo struct {
	requestID string
	clientIP  string
	userID    string
}

func withRequestInfo(ctx context.Context, info *requestInfo) context.Context {
	return context.WithValue(ctx, requestKey, info)
}

func requestInfoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestKey).(*requestInfo)
	return info
}

// GetRequestID returns the request id set by RequestContext, or "".
func GetRequestID(ctx context.Context) string {
	if info := requestInfoFrom(ctx); info != nil {
		return info.requestID
	}
	return ""
}

// ClientIP returns the client IP recorded by RequestContext, or "unknown".
// It has the shape of audit.IPExtractor.
func ClientIP(ctx context.Context) string {
	if info := requestInfoFrom(ctx); info != nil && info.clientIP != "" {
		return info.clientIP
	}
	return "unknown"
}
