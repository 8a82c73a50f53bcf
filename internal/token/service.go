// Package token issues, verifies, refreshes and revokes access and refresh tokens.
// Signing lives in security.TokenProvider; revocation is delegated to a RevocationChecker.
package token

import (
	"context"
	"errors"
	"time"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
	"github.com/swpuclaylee/APIFlask/internal/db"
	"github.com/swpuclaylee/APIFlask/internal/metrics"
	"github.com/swpuclaylee/APIFlask/internal/security"
	userdomain "github.com/swpuclaylee/APIFlask/internal/user/domain"
)

// ClaimsProvider builds the identity claims embedded in a token for u.
type ClaimsProvider interface {
	Claims(u *userdomain.User) security.IdentityClaims
}

// ClaimsFunc adapts a function to ClaimsProvider.
type ClaimsFunc func(u *userdomain.User) security.IdentityClaims

func (f ClaimsFunc) Claims(u *userdomain.User) security.IdentityClaims { return f(u) }

// DefaultClaims embeds username, is_admin and email.
var DefaultClaims ClaimsProvider = ClaimsFunc(func(u *userdomain.User) security.IdentityClaims {
	return security.IdentityClaims{Username: u.Username, IsAdmin: u.IsAdmin, Email: u.Email}
})

// RevocationChecker is the denylist seen by the token service. IsRevoked never fails; outages
// are resolved by the implementation's fail mode.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) bool
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
}

// UserReader re-reads users on refresh.
type UserReader interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// Pair is an access token with its refresh token.
type Pair struct {
	Access  *security.IssuedToken
	Refresh *security.IssuedToken
}

// Config holds the token service dependencies. Claims defaults to DefaultClaims; Metrics may be nil.
type Config struct {
	Provider    *security.TokenProvider
	Users       UserReader
	Revocations RevocationChecker
	Claims      ClaimsProvider
	Metrics     *metrics.Metrics
	// StoreTimeout bounds the user re-read on refresh (0 = none).
	StoreTimeout time.Duration
	// RevokeOnPasswordChange rejects refresh tokens issued before the user's last password change.
	RevokeOnPasswordChange bool
}

// Service is the token service.
type Service struct {
	provider     *security.TokenProvider
	users        UserReader
	revocations  RevocationChecker
	claims       ClaimsProvider
	metrics      *metrics.Metrics
	storeTimeout time.Duration
	// revokeStale rejects refresh tokens older than password_changed_at.
	revokeStale bool
}

// NewService returns a Service built from cfg.
func NewService(cfg Config) *Service {
	claims := cfg.Claims
	if claims == nil {
		claims = DefaultClaims
	}
	return &Service{
		provider:     cfg.Provider,
		users:        cfg.Users,
		revocations:  cfg.Revocations,
		claims:       claims,
		metrics:      cfg.Metrics,
		storeTimeout: cfg.StoreTimeout,
		revokeStale:  cfg.RevokeOnPasswordChange,
	}
}

// Issue signs a token of kind for u. A nil or inactive user is autherr.ErrIdentityInvalid.
func (s *Service) Issue(ctx context.Context, u *userdomain.User, kind security.Kind) (*security.IssuedToken, error) {
	if u == nil || !u.IsActive {
		return nil, autherr.ErrIdentityInvalid
	}
	tok, err := s.provider.Issue(kind, u.ID, s.claims.Claims(u))
	if err != nil {
		return nil, err
	}
	s.metrics.TokenIssued(string(kind))
	return tok, nil
}

// IssuePair issues an access token and a refresh token for u.
func (s *Service) IssuePair(ctx context.Context, u *userdomain.User) (*Pair, error) {
	access, err := s.Issue(ctx, u, security.KindAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := s.Issue(ctx, u, security.KindRefresh)
	if err != nil {
		return nil, err
	}
	return &Pair{Access: access, Refresh: refresh}, nil
}

// Verify parses the token, checks it is of kind expected and that its jti is not revoked.
// Errors: autherr.ErrTokenMalformed, ErrTokenExpired, ErrTokenWrongKind, ErrTokenRevoked.
func (s *Service) Verify(ctx context.Context, tokenString string, expected security.Kind) (*security.Claims, error) {
	claims, err := s.provider.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != expected {
		return nil, autherr.ErrTokenWrongKind
	}
	if s.revocations.IsRevoked(ctx, claims.ID) {
		return nil, autherr.ErrTokenRevoked
	}
	return claims, nil
}

// Revoke adds jti to the denylist for ttl. Revoking an already revoked jti succeeds.
func (s *Service) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return s.revocations.Revoke(ctx, jti, ttl)
}

// RevokeClaims revokes the token described by claims for its remaining lifetime.
func (s *Service) RevokeClaims(ctx context.Context, claims *security.Claims) error {
	if claims == nil || claims.ID == "" {
		return autherr.ErrTokenMalformed
	}
	return s.Revoke(ctx, claims.ID, claims.Remaining(s.provider.Now()))
}

// IsRevoked reports whether jti is on the denylist.
func (s *Service) IsRevoked(ctx context.Context, jti string) bool {
	return s.revocations.IsRevoked(ctx, jti)
}

// Refresh verifies a refresh token, re-reads its user and issues a new access token carrying the
// user's current claims. The refresh token itself is neither rotated nor revoked. With
// RevokeOnPasswordChange set, a refresh token issued before the user's last password change is
// autherr.ErrTokenRevoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*security.IssuedToken, *userdomain.User, error) {
	claims, err := s.Verify(ctx, refreshToken, security.KindRefresh)
	if err != nil {
		return nil, nil, err
	}
	u, err := s.loadUser(ctx, claims.UserID())
	if err != nil {
		return nil, nil, err
	}
	if u == nil || !u.IsActive {
		return nil, nil, autherr.ErrIdentityInvalid
	}
	if s.revokeStale && issuedBeforePasswordChange(claims, u) {
		return nil, nil, autherr.ErrTokenRevoked
	}
	access, err := s.Issue(ctx, u, security.KindAccess)
	if err != nil {
		return nil, nil, err
	}
	return access, u, nil
}

func (s *Service) loadUser(ctx context.Context, id string) (*userdomain.User, error) {
	ctx, cancel := db.Bounded(ctx, s.storeTimeout)
	defer cancel()
	u, err := s.users.GetByID(ctx, id)
	if err != nil && !errors.Is(err, autherr.ErrStoreUnavailable) {
		err = autherr.Unavailable("refresh user", err)
	}
	return u, err
}

// issuedBeforePasswordChange compares at second precision, the resolution of iat.
func issuedBeforePasswordChange(claims *security.Claims, u *userdomain.User) bool {
	if u.PasswordChangedAt == nil || claims.IssuedAt == nil {
		return false
	}
	return claims.IssuedAt.Time.Before(u.PasswordChangedAt.Truncate(time.Second))
}
