// Package handler exposes role, permission and membership management over HTTP.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
	"github.com/swpuclaylee/APIFlask/internal/platform/httputil"
	"github.com/swpuclaylee/APIFlask/internal/platform/rbac"
	"github.com/swpuclaylee/APIFlask/internal/rbac/domain"
	rbacsvc "github.com/swpuclaylee/APIFlask/internal/rbac/service"
	"github.com/swpuclaylee/APIFlask/internal/server/middleware"
	userdomain "github.com/swpuclaylee/APIFlask/internal/user/domain"
)

// RoleService is the subset of rbacsvc.RoleService used by the handlers.
type RoleService interface {
	CreateRole(ctx context.Context, name, description string) (*domain.RoleDetail, error)
	GetRole(ctx context.Context, id string) (*domain.RoleDetail, error)
	ListRoles(ctx context.Context) ([]*domain.RoleDetail, error)
	UpdateRole(ctx context.Context, id string, upd rbacsvc.RoleUpdate) (*domain.RoleDetail, error)
	DeactivateRole(ctx context.Context, id string) error
	ActivateRole(ctx context.Context, id string) error
	AssignPermission(ctx context.Context, roleID, permission string) error
	RemovePermission(ctx context.Context, roleID, permission string) error
	SetPermissions(ctx context.Context, roleID string, names []string) (*domain.RoleDetail, error)
	AssignRoleToUser(ctx context.Context, userID, roleName string) error
	RemoveRoleFromUser(ctx context.Context, userID, roleName string) error
	UserRoleNames(ctx context.Context, userID string) ([]string, error)
}

// PermissionService is the subset of rbacsvc.PermissionService used by the handlers.
type PermissionService interface {
	ListPermissions(ctx context.Context) ([]*domain.Permission, error)
	CreatePermission(ctx context.Context, name, description string) (*domain.Permission, error)
	SetActive(ctx context.Context, name string, active bool) error
}

// PermissionResolver answers effective-permission queries.
type PermissionResolver interface {
	Roles(ctx context.Context, userID string) ([]string, error)
	EffectivePermissions(ctx context.Context, userID string) ([]string, error)
}

// UserReader confirms a user exists before its permissions are reported.
type UserReader interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// Handlers serves /roles, /permissions, user memberships and the rbac check.
type Handlers struct {
	roles    RoleService
	perms    PermissionService
	resolver PermissionResolver
	users    UserReader
	errs     httputil.ErrorWriter
}

// NewHandlers returns the RBAC handlers.
func NewHandlers(roles RoleService, perms PermissionService, resolver PermissionResolver, users UserReader, errs httputil.ErrorWriter) *Handlers {
	return &Handlers{roles: roles, perms: perms, resolver: resolver, users: users, errs: errs}
}

// RegisterRoutes registers the RBAC routes.
func (h *Handlers) RegisterRoutes(router *mux.Router, auth *middleware.Auth) {
	roleRead := rbac.Permission("role:read")
	roleUpdate := rbac.Permission("role:update")
	membership := rbac.AllOf("user:update", "role:update")

	// Roles
	router.Handle("/roles", auth.Protect(roleRead, http.HandlerFunc(h.ListRoles))).Methods("GET")
	router.Handle("/roles", auth.Protect(rbac.Permission("role:create"), http.HandlerFunc(h.CreateRole))).Methods("POST")
	router.Handle("/roles/{id}", auth.Protect(roleRead, http.HandlerFunc(h.GetRole))).Methods("GET")
	router.Handle("/roles/{id}", auth.Protect(roleUpdate, http.HandlerFunc(h.UpdateRole))).Methods("PUT")
	router.Handle("/roles/{id}", auth.Protect(rbac.Permission("role:delete"), http.HandlerFunc(h.DeleteRole))).Methods("DELETE")
	router.Handle("/roles/{id}/activate", auth.Protect(roleUpdate, http.HandlerFunc(h.ActivateRole))).Methods("POST")
	router.Handle("/roles/{id}/permissions", auth.Protect(roleUpdate, http.HandlerFunc(h.SetRolePermissions))).Methods("PUT")
	router.Handle("/roles/{id}/permissions", auth.Protect(roleUpdate, http.HandlerFunc(h.AddRolePermission))).Methods("POST")
	router.Handle("/roles/{id}/permissions/{name}", auth.Protect(roleUpdate, http.HandlerFunc(h.RemoveRolePermission))).Methods("DELETE")

	// Permissions
	router.Handle("/permissions", auth.Protect(rbac.Permission("permission:read"), http.HandlerFunc(h.ListPermissions))).Methods("GET")
	router.Handle("/permissions", auth.Protect(rbac.Permission("permission:create"), http.HandlerFunc(h.CreatePermission))).Methods("POST")
	router.Handle("/permissions/{name}/active", auth.Protect(rbac.Permission("permission:update"), http.HandlerFunc(h.SetPermissionActive))).Methods("PUT")

	// User memberships
	router.Handle("/users/{id}/roles", auth.Protect(rbac.AnyOf("user:read", "role:read"), http.HandlerFunc(h.GetUserRoles))).Methods("GET")
	router.Handle("/users/{id}/roles", auth.Protect(membership, http.HandlerFunc(h.AssignUserRole))).Methods("POST")
	router.Handle("/users/{id}/roles/{role}", auth.Protect(membership, http.HandlerFunc(h.RemoveUserRole))).Methods("DELETE")
	router.Handle("/users/{id}/permissions", auth.Protect(rbac.Permission("permission:read"), http.HandlerFunc(h.GetUserPermissions))).Methods("GET")

	router.Handle("/system/rbac-check", auth.OptionalAuth(http.HandlerFunc(h.Check))).Methods("GET")
}

// RoleView is the JSON representation of a role.
type RoleView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PermissionView is the JSON representation of a permission.
type PermissionView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
}

func roleView(d *domain.RoleDetail) RoleView {
	perms := d.Permissions
	if perms == nil {
		perms = []string{}
	}
	return RoleView{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		IsActive:    d.IsActive,
		Permissions: perms,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func permissionView(p *domain.Permission) PermissionView {
	return PermissionView{
		ID:          p.ID,
		Name:        p.Name,
		Resource:    p.Resource,
		Action:      p.Action,
		Description: p.Description,
		IsActive:    p.IsActive,
	}
}

type roleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type permissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type permissionRequest struct {
	Permission  string `json:"permission"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type activeRequest struct {
	IsActive *bool `json:"is_active"`
}

type userRoleRequest struct {
	Role string `json:"role"`
}

// ListRoles returns the active roles.
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListRoles(r.Context())
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	out := make([]RoleView, 0, len(roles))
	for _, d := range roles {
		out = append(out, roleView(d))
	}
	_ = httputil.WriteSuccess(w, out)
}

// CreateRole adds a role.
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	if req.Name == nil {
		h.errs.Write(w, r, autherr.Invalid("name", "is required"))
		return
	}
	desc := ""
	if req.Description != nil {
		desc = *req.Description
	}
	d, err := h.roles.CreateRole(r.Context(), *req.Name, desc)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccessMessage(w, "Role created", roleView(d))
}

// GetRole returns one role with its permissions.
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	d, err := h.roles.GetRole(r.Context(), httputil.PathString(r, "id"))
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, roleView(d))
}

// UpdateRole renames a role or changes its description.
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	d, err := h.roles.UpdateRole(r.Context(), httputil.PathString(r, "id"), rbacsvc.RoleUpdate{Name: req.Name, Description: req.Description})
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccessMessage(w, "Role updated", roleView(d))
}

// DeleteRole deactivates a role.
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.roles.DeactivateRole(r.Context(), httputil.PathString(r, "id")); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccessMessage(w, "Role deactivated", nil)
}

// ActivateRole reactivates a deactivated role.
func (h *Handlers) ActivateRole(w http.ResponseWriter, r *http.Request) {
	if err := h.roles.ActivateRole(r.Context(), httputil.PathString(r, "id")); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccessMessage(w, "Role activated", nil)
}

// SetRolePermissions replaces the role's permissions.
func (h *Handlers) SetRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req permissionsRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	if req.Permissions == nil {
		h.errs.Write(w, r, autherr.Invalid("permissions", "is required"))
		return
	}
	d, err := h.roles.SetPermissions(r.Context(), httputil.PathString(r, "id"), req.Permissions)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccessMessage(w, "Role permissions updated", roleView(d))
}

// AddRolePermission links one permission to the role.
func (h *Handlers) AddRolePermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	name := req.Permission
	if name == "" {
		name = req.Name
	}
	if name == "" {
		h.errs.Write(w, r, autherr.Invalid("permission", "is required"))
		return
	}
	if err := h.roles.AssignPermission(r.Context(), httputil.PathString(r, "id"), name); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccessMessage(w, "Permission assigned", nil)
}

// RemoveRolePermission unlinks one permission from the role.
func (h *Handlers) RemoveRolePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.roles.RemovePermission(r.Context(), httputil.PathString(r, "id"), httputil.PathString(r, "name")); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccessMessage(w, "Permission removed", nil)
}

// ListPermissions returns the active permissions.
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.perms.ListPermissions(r.Context())
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	out := make([]PermissionView, 0, len(perms))
	for _, p := range perms {
		out = append(out, permissionView(p))
	}
	_ = httputil.WriteSuccess(w, out)
}

// CreatePermission adds a resource:action permission.
func (h *Handlers) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	p, err := h.perms.CreatePermission(r.Context(), req.Name, req.Description)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccessMessage(w, "Permission created", permissionView(p))
}

// SetPermissionActive activates or deactivates a permission.
func (h *Handlers) SetPermissionActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	if req.IsActive == nil {
		h.errs.Write(w, r, autherr.Invalid("is_active", "is required"))
		return
	}
	if err := h.perms.SetActive(r.Context(), httputil.PathString(r, "name"), *req.IsActive); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	msg := "Permission deactivated"
	if *req.IsActive {
		msg = "Permission activated"
	}
	_ = httputil.WriteSuccessMessage(w, msg, nil)
}

// GetUserRoles returns the names of the user's active roles.
func (h *Handlers) GetUserRoles(w http.ResponseWriter, r *http.Request) {
	names, err := h.roles.UserRoleNames(r.Context(), httputil.PathString(r, "id"))
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, names)
}

// AssignUserRole grants a role, by name, to the user.
func (h *Handlers) AssignUserRole(w http.ResponseWriter, r *http.Request) {
	var req userRoleRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	if req.Role == "" {
		h.errs.Write(w, r, autherr.Invalid("role", "is required"))
		return
	}
	if err := h.roles.AssignRoleToUser(r.Context(), httputil.PathString(r, "id"), req.Role); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccessMessage(w, "Role assigned", nil)
}

// RemoveUserRole revokes a role, by name, from the user.
func (h *Handlers) RemoveUserRole(w http.ResponseWriter, r *http.Request) {
	if err := h.roles.RemoveRoleFromUser(r.Context(), httputil.PathString(r, "id"), httputil.PathString(r, "role")); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccessMessage(w, "Role removed", nil)
}

// GetUserPermissions returns the user's effective permissions. Unknown users are 404 here even
// though the resolver treats them as holding nothing.
func (h *Handlers) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	id := httputil.PathString(r, "id")
	u, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	if u == nil {
		h.errs.Write(w, r, fmt.Errorf("user %s: %w", id, autherr.ErrNotFound))
		return
	}
	perms, err := h.resolver.EffectivePermissions(r.Context(), id)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, perms)
}

type checkResponse struct {
	Authenticated bool     `json:"authenticated"`
	UserID        string   `json:"user_id"`
	Username      string   `json:"username"`
	IsAdmin       bool     `json:"is_admin"`
	Roles         []string `json:"roles"`
	Permissions   []string `json:"permissions"`
}

// Check reports the caller's identity with its roles and effective permissions. Anonymous callers
// get an empty grant set.
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	resp := checkResponse{UserID: id.UserID, Roles: []string{}, Permissions: []string{}}
	if ok {
		resp.Authenticated = true
		resp.Username = id.Username
		resp.IsAdmin = id.IsAdmin
		roles, err := h.resolver.Roles(r.Context(), id.UserID)
		if err != nil {
			h.errs.Write(w, r, err)
			return
		}
		perms, err := h.resolver.EffectivePermissions(r.Context(), id.UserID)
		if err != nil {
			h.errs.Write(w, r, err)
			return
		}
		resp.Roles, resp.Permissions = roles, perms
	}
	_ = httputil.WriteSuccess(w, resp)
}
