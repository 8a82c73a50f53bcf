package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"github.com/swpuclaylee/APIFlask/internal/audit"
	auditdomain "github.com/swpuclaylee/APIFlask/internal/audit/domain"
	"github.com/swpuclaylee/APIFlask/internal/autherr"
	"github.com/swpuclaylee/APIFlask/internal/db"
	"github.com/swpuclaylee/APIFlask/internal/logging"
	"github.com/swpuclaylee/APIFlask/internal/metrics"
	rbacdomain "github.com/swpuclaylee/APIFlask/internal/rbac/domain"
	"github.com/swpuclaylee/APIFlask/internal/security"
	"github.com/swpuclaylee/APIFlask/internal/token"
	userdomain "github.com/swpuclaylee/APIFlask/internal/user/domain"
	usersvc "github.com/swpuclaylee/APIFlask/internal/user/service"
)

// Login results recorded in metrics.
const (
	loginSuccess       = "success"
	loginUnknownUser   = "unknown_user"
	loginWrongPassword = "wrong_password"
	loginDisabled      = "disabled"
)

// AuthResult holds the outcome of Register and Login: the user and a fresh token pair.
type AuthResult struct {
	User   *userdomain.User
	Tokens *token.Pair
}

// Profile is the current user with their active roles and effective permissions.
type Profile struct {
	User        *userdomain.User
	Roles       []string
	Permissions []string
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByUsername(ctx context.Context, username string) (*userdomain.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// UserCreator validates and inserts new users. usersvc.UserService satisfies it.
type UserCreator interface {
	Create(ctx context.Context, in usersvc.CreateInput) (*userdomain.User, error)
}

// RoleAssigner grants a role by name. rbac RoleService satisfies it.
type RoleAssigner interface {
	AssignRoleToUser(ctx context.Context, userID, roleName string) error
}

// PermissionReader reads a user's active roles and effective permissions. resolver.Resolver satisfies it.
type PermissionReader interface {
	Roles(ctx context.Context, userID string) ([]string, error)
	EffectivePermissions(ctx context.Context, userID string) ([]string, error)
}

// Config holds the auth service dependencies. Audit, Metrics, Logger and Clock may be nil.
type Config struct {
	Users       UserRepo
	Creator     UserCreator
	Roles       RoleAssigner
	Permissions PermissionReader
	Hasher      *security.Hasher
	Tokens      *token.Service
	Audit       audit.AuditLogger
	Metrics     *metrics.Metrics
	Logger      *logrus.Logger
	Clock       clock.Clock
	// StoreTimeout bounds each credential store call (0 = none).
	StoreTimeout time.Duration
	// RevokeOnPasswordChange revokes the presenting access token on password change.
	RevokeOnPasswordChange bool
}

// AuthService implements register, login, refresh, logout, password change and "me".
type AuthService struct {
	users          UserRepo
	creator        UserCreator
	roles          RoleAssigner
	permissions    PermissionReader
	hasher         *security.Hasher
	tokens         *token.Service
	audit          audit.AuditLogger
	metrics        *metrics.Metrics
	log            *logrus.Entry
	clock          clock.Clock
	timeout        time.Duration
	revokeOnChange bool
}

// NewAuthService returns an AuthService built from cfg.
func NewAuthService(cfg Config) *AuthService {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	return &AuthService{
		users:          cfg.Users,
		creator:        cfg.Creator,
		roles:          cfg.Roles,
		permissions:    cfg.Permissions,
		hasher:         cfg.Hasher,
		tokens:         cfg.Tokens,
		audit:          cfg.Audit,
		metrics:        cfg.Metrics,
		log:            logging.OrDiscard(cfg.Logger).WithField("component", "auth"),
		clock:          clk,
		timeout:        cfg.StoreTimeout,
		revokeOnChange: cfg.RevokeOnPasswordChange,
	}
}

// Register creates an active user, grants the default role when it exists and issues a token pair.
// A taken username or email is autherr.DuplicateError; two concurrent registrations of the same
// name are decided by the store's unique index.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	u, err := s.creator.Create(ctx, usersvc.CreateInput{Username: username, Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	if s.roles != nil {
		if err := s.roles.AssignRoleToUser(ctx, u.ID, rbacdomain.DefaultRole); err != nil {
			if errors.Is(err, autherr.ErrNotFound) {
				s.log.WithField("role", rbacdomain.DefaultRole).Debug("default role missing; user registered without roles")
			} else {
				s.log.WithError(err).WithField("user_id", u.ID).Warn("failed to grant default role")
			}
		}
	}
	s.logEvent(ctx, u.ID, auditdomain.ActionRegister, "username="+u.Username)

	pair, err := s.tokens.IssuePair(ctx, u)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Tokens: pair}, nil
}

// Login checks credentials and issues a token pair. Unknown users and wrong passwords are the same
// autherr.ErrInvalidCredentials; the bcrypt compare runs against a dummy hash for unknown users.
// A correct password on an inactive account is autherr.ErrAccountDisabled.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, autherr.Invalid("username", "is required")
	}
	if password == "" {
		return nil, autherr.Invalid("password", "is required")
	}

	u, err := s.getByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		_ = s.hasher.CompareDummy(password)
		s.loginFailed(ctx, "", username, loginUnknownUser)
		return nil, autherr.ErrInvalidCredentials
	}
	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		s.loginFailed(ctx, u.ID, username, loginWrongPassword)
		return nil, autherr.ErrInvalidCredentials
	}
	if !u.IsActive {
		s.loginFailed(ctx, u.ID, username, loginDisabled)
		return nil, autherr.ErrAccountDisabled
	}

	now := s.clock.Now().UTC()
	if err := s.touchLogin(ctx, u.ID, now); err != nil {
		s.log.WithError(err).WithField("user_id", u.ID).Warn("failed to record last login")
	} else {
		u.LastLoginAt = &now
	}
	pair, err := s.tokens.IssuePair(ctx, u)
	if err != nil {
		return nil, err
	}
	s.metrics.LoginAttempt(loginSuccess)
	s.logEvent(ctx, u.ID, auditdomain.ActionLogin, "username="+u.Username)
	return &AuthResult{User: u, Tokens: pair}, nil
}

// Refresh exchanges a refresh token for a new access token carrying the user's current claims.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*security.IssuedToken, *userdomain.User, error) {
	return s.tokens.Refresh(ctx, refreshToken)
}

// Logout revokes the presenting access token for its remaining lifetime. When the client also
// sends its refresh token, that token must belong to the same user and is revoked too.
func (s *AuthService) Logout(ctx context.Context, access *security.Claims, refreshToken string) error {
	if access == nil {
		return autherr.ErrTokenMalformed
	}
	var refresh *security.Claims
	if refreshToken = strings.TrimSpace(refreshToken); refreshToken != "" {
		rc, err := s.tokens.Verify(ctx, refreshToken, security.KindRefresh)
		switch {
		case errors.Is(err, autherr.ErrTokenRevoked):
			// Already logged out with this refresh token.
		case err != nil:
			return err
		case rc.UserID() != access.UserID():
			return autherr.Invalid("refresh_token", "does not belong to the current user")
		default:
			refresh = rc
		}
	}
	if err := s.tokens.RevokeClaims(ctx, access); err != nil {
		return err
	}
	if refresh != nil {
		if err := s.tokens.RevokeClaims(ctx, refresh); err != nil {
			return err
		}
	}
	meta := "refresh_revoked=false"
	if refresh != nil {
		meta = "refresh_revoked=true"
	}
	s.logEvent(ctx, access.UserID(), auditdomain.ActionLogout, meta)
	return nil
}

// ChangePassword verifies the current password and stores the new one. password_changed_at is
// stamped, so refresh tokens issued before the change stop working. With revoke-on-change the
// presenting access token is revoked as well. A fresh token pair is returned either way.
func (s *AuthService) ChangePassword(ctx context.Context, access *security.Claims, current, newPassword string) (*token.Pair, error) {
	if access == nil {
		return nil, autherr.ErrTokenMalformed
	}
	if current == "" {
		return nil, autherr.Invalid("current_password", "is required")
	}
	if err := security.ValidateNewPassword(newPassword); err != nil {
		return nil, err
	}
	u, err := s.getByID(ctx, access.UserID())
	if err != nil {
		return nil, err
	}
	if u == nil || !u.IsActive {
		return nil, autherr.ErrIdentityInvalid
	}
	if err := s.hasher.Compare(u.PasswordHash, current); err != nil {
		return nil, fmt.Errorf("current password: %w", autherr.ErrInvalidCredentials)
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}
	changedAt := s.clock.Now().UTC()
	if err := s.updatePassword(ctx, u.ID, hash, changedAt); err != nil {
		return nil, err
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = &changedAt

	if s.revokeOnChange {
		if err := s.tokens.RevokeClaims(ctx, access); err != nil {
			s.log.WithError(err).WithField("user_id", u.ID).Warn("failed to revoke access token after password change")
		}
	}
	s.logEvent(ctx, u.ID, auditdomain.ActionPasswordChange, "")
	return s.tokens.IssuePair(ctx, u)
}

// Me returns the user's profile with active role names and effective permissions.
func (s *AuthService) Me(ctx context.Context, userID string) (*Profile, error) {
	u, err := s.getByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.IsActive {
		return nil, autherr.ErrIdentityInvalid
	}
	p := &Profile{User: u, Roles: []string{}, Permissions: []string{}}
	if s.permissions == nil {
		return p, nil
	}
	if p.Roles, err = s.permissions.Roles(ctx, userID); err != nil {
		return nil, err
	}
	if p.Permissions, err = s.permissions.EffectivePermissions(ctx, userID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *AuthService) getByUsername(ctx context.Context, username string) (*userdomain.User, error) {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()
	return s.users.GetByUsername(ctx, username)
}

func (s *AuthService) getByID(ctx context.Context, id string) (*userdomain.User, error) {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()
	return s.users.GetByID(ctx, id)
}

func (s *AuthService) touchLogin(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()
	return s.users.TouchLogin(ctx, id, at)
}

func (s *AuthService) updatePassword(ctx context.Context, id, hash string, at time.Time) error {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()
	return s.users.UpdatePassword(ctx, id, hash, at)
}

func (s *AuthService) loginFailed(ctx context.Context, userID, username, reason string) {
	s.metrics.LoginAttempt(reason)
	s.log.WithFields(logrus.Fields{"username": username, "reason": reason}).Info("login failed")
	s.logEvent(ctx, userID, auditdomain.ActionLoginFailure, "username="+username+" reason="+reason)
}

func (s *AuthService) logEvent(ctx context.Context, userID, action, metadata string) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, userID, action, auditdomain.ResourceAuth, metadata)
}
