// Package handler exposes registration, login and the token lifecycle over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/swpuclaylee/APIFlask/internal/identity/service"
	"github.com/swpuclaylee/APIFlask/internal/platform/httputil"
	"github.com/swpuclaylee/APIFlask/internal/security"
	"github.com/swpuclaylee/APIFlask/internal/server/middleware"
	"github.com/swpuclaylee/APIFlask/internal/token"
	userhandler "github.com/swpuclaylee/APIFlask/internal/user/handler"
	userdomain "github.com/swpuclaylee/APIFlask/internal/user/domain"
)

const tokenType = "Bearer"

// AuthService is the subset of service.AuthService used by the handlers.
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*service.AuthResult, error)
	Login(ctx context.Context, username, password string) (*service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*security.IssuedToken, *userdomain.User, error)
	Logout(ctx context.Context, access *security.Claims, refreshToken string) error
	ChangePassword(ctx context.Context, access *security.Claims, current, newPassword string) (*token.Pair, error)
	Me(ctx context.Context, userID string) (*service.Profile, error)
}

// Handlers serves /auth.
type Handlers struct {
	auth AuthService
	errs httputil.ErrorWriter
}

// NewHandlers returns the auth handlers.
func NewHandlers(auth AuthService, errs httputil.ErrorWriter) *Handlers {
	return &Handlers{auth: auth, errs: errs}
}

// RegisterRoutes registers the auth routes. limiter throttles register and login per client; it
// may be nil.
func (h *Handlers) RegisterRoutes(router *mux.Router, auth *middleware.Auth, limiter *middleware.RateLimiter) {
	throttle := func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return limiter.Middleware(next)
	}
	router.Handle("/auth/register", throttle(http.HandlerFunc(h.Register))).Methods("POST")
	router.Handle("/auth/login", throttle(http.HandlerFunc(h.Login))).Methods("POST")
	router.HandleFunc("/auth/refresh", h.Refresh).Methods("POST")
	router.Handle("/auth/logout", auth.Authenticate(http.HandlerFunc(h.Logout))).Methods("POST")
	router.Handle("/auth/me", auth.Authenticate(http.HandlerFunc(h.Me))).Methods("GET")
	router.Handle("/auth/change-password", auth.Authenticate(http.HandlerFunc(h.ChangePassword))).Methods("PUT")
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type tokenResponse struct {
	AccessToken  string                `json:"access_token"`
	RefreshToken string                `json:"refresh_token,omitempty"`
	TokenType    string                `json:"token_type"`
	ExpiresIn    int64                 `json:"expires_in"`
	User         *userhandler.UserView `json:"user,omitempty"`
}

type profileResponse struct {
	userhandler.UserView
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

func pairResponse(p *token.Pair, u *userdomain.User) tokenResponse {
	resp := tokenResponse{
		AccessToken:  p.Access.Token,
		RefreshToken: p.Refresh.Token,
		TokenType:    tokenType,
		ExpiresIn:    expiresIn(p.Access),
	}
	if u != nil {
		v := userhandler.NewUserView(u)
		resp.User = &v
	}
	return resp
}

func expiresIn(t *security.IssuedToken) int64 {
	return int64(t.ExpiresAt.Sub(t.IssuedAt).Seconds())
}

// Register creates an account and returns its first token pair.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	res, err := h.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccessMessage(w, "Registration successful", pairResponse(res.Tokens, res.User))
}

// Login exchanges credentials for a token pair.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	res, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccessMessage(w, "Login successful", pairResponse(res.Tokens, res.User))
}

// Refresh issues a new access token. The refresh token comes from the Authorization header or,
// failing that, the refresh_token body field.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	refresh := middleware.BearerToken(r)
	if refresh == "" {
		var req refreshRequest
		if err := httputil.ParseOptionalJSON(r, &req); err != nil {
			h.errs.Write(w, r, err)
			return
		}
		refresh = req.RefreshToken
	}
	if refresh == "" {
		httputil.WriteFailure(w, http.StatusUnauthorized, "Refresh token required", nil)
		return
	}
	access, _, err := h.auth.Refresh(r.Context(), refresh)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, tokenResponse{
		AccessToken: access.Token,
		TokenType:   tokenType,
		ExpiresIn:   expiresIn(access),
	})
}

// Logout revokes the presenting access token and, when sent in the body, the refresh token.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httputil.ParseOptionalJSON(r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	id, _ := middleware.IdentityFrom(r.Context())
	if err := h.auth.Logout(r.Context(), id.Claims, req.RefreshToken); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccessMessage(w, "Logout successful", nil)
}

// Me returns the caller's profile with roles and effective permissions.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	p, err := h.auth.Me(r.Context(), id.UserID)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, profileResponse{
		UserView:    userhandler.NewUserView(p.User),
		Roles:       p.Roles,
		Permissions: p.Permissions,
	})
}

// ChangePassword replaces the caller's password and returns a fresh token pair.
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	id, _ := middleware.IdentityFrom(r.Context())
	pair, err := h.auth.ChangePassword(r.Context(), id.Claims, req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccessMessage(w, "Password changed", pairResponse(pair, nil))
}
