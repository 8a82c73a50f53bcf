// Package handler exposes user administration over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/swpuclaylee/APIFlask/internal/platform/httputil"
	"github.com/swpuclaylee/APIFlask/internal/platform/rbac"
	"github.com/swpuclaylee/APIFlask/internal/server/middleware"
	"github.com/swpuclaylee/APIFlask/internal/user/domain"
	usersvc "github.com/swpuclaylee/APIFlask/internal/user/service"
)

// UserService is the subset of usersvc.UserService used by the handlers.
type UserService interface {
	Create(ctx context.Context, in usersvc.CreateInput) (*domain.User, error)
	Get(ctx context.Context, id string) (*domain.User, error)
	Update(ctx context.Context, id string, upd domain.Update) (*domain.User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter domain.ListFilter) (*domain.Page, error)
}

// Handlers serves /users.
type Handlers struct {
	users UserService
	errs  httputil.ErrorWriter
}

// NewHandlers returns the user handlers.
func NewHandlers(users UserService, errs httputil.ErrorWriter) *Handlers {
	return &Handlers{users: users, errs: errs}
}

// RegisterRoutes registers the user routes on router, each behind its permission.
func (h *Handlers) RegisterRoutes(router *mux.Router, auth *middleware.Auth) {
	router.Handle("/users", auth.Protect(rbac.Permission("user:read"), http.HandlerFunc(h.List))).Methods("GET")
	router.Handle("/users", auth.Protect(rbac.Permission("user:create"), http.HandlerFunc(h.Create))).Methods("POST")
	router.Handle("/users/{id}", auth.Protect(rbac.Permission("user:read"), http.HandlerFunc(h.Get))).Methods("GET")
	router.Handle("/users/{id}", auth.Protect(rbac.Permission("user:update"), http.HandlerFunc(h.Update))).Methods("PUT")
	router.Handle("/users/{id}", auth.Protect(rbac.Permission("user:delete"), http.HandlerFunc(h.Delete))).Methods("DELETE")
}

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
	IsActive *bool  `json:"is_active"`
}

type updateUserRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	IsActive *bool   `json:"is_active"`
	IsAdmin  *bool   `json:"is_admin"`
}

// List returns one page of users filtered by query, is_active and is_admin.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilter(r)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	page, err := h.users.List(r.Context(), filter)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WritePaginated(w, userViews(page.Users), httputil.NewPaginate(filter.Page, filter.PerPage, int64(page.Total)))
}

// Create adds a user.
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	u, err := h.users.Create(r.Context(), usersvc.CreateInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		IsAdmin:  req.IsAdmin,
		IsActive: req.IsActive,
	})
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccessMessage(w, "User created", NewUserView(u))
}

// Get returns one user.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), httputil.PathString(r, "id"))
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, NewUserView(u))
}

// Update changes username, email, is_active or is_admin.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	u, err := h.users.Update(r.Context(), httputil.PathString(r, "id"), domain.Update{
		Username: req.Username,
		Email:    req.Email,
		IsActive: req.IsActive,
		IsAdmin:  req.IsAdmin,
	})
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccessMessage(w, "User updated", NewUserView(u))
}

// Delete removes a user.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Delete(r.Context(), httputil.PathString(r, "id")); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccessMessage(w, "User deleted", nil)
}

func listFilter(r *http.Request) (domain.ListFilter, error) {
	var (
		f   domain.ListFilter
		err error
	)
	if f.Page, err = httputil.QueryInt(r, "page", 1); err != nil {
		return f, err
	}
	if f.PerPage, err = httputil.QueryInt(r, "per_page", domain.DefaultPerPage); err != nil {
		return f, err
	}
	f.Query = r.URL.Query().Get("query")
	if f.Query == "" {
		f.Query = r.URL.Query().Get("search")
	}
	if f.IsActive, err = httputil.QueryBool(r, "is_active"); err != nil {
		return f, err
	}
	if f.IsAdmin, err = httputil.QueryBool(r, "is_admin"); err != nil {
		return f, err
	}
	f.Normalize()
	return f, nil
}
