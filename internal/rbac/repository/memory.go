package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
	"github.com/swpuclaylee/APIFlask/internal/rbac/domain"
	userdomain "github.com/swpuclaylee/APIFlask/internal/user/domain"
)

// UserLookup resolves users for Snapshot. The user memory repository satisfies it. It is called
// with the graph lock held and must not call back into the MemoryRepository.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

type pair struct{ a, b string }

// MemoryRepository is an in-process Repository. Every read takes the same lock as writes, so a
// Snapshot is always consistent. Used by tests and local runs without Postgres.
type MemoryRepository struct {
	users UserLookup

	mu          sync.RWMutex
	roles       map[string]*domain.Role
	permissions map[string]*domain.Permission
	rolePerms   map[pair]struct{}
	userRoles   map[pair]struct{}
}

// NewMemoryRepository returns an empty MemoryRepository that reads user rows from users.
func NewMemoryRepository(users UserLookup) *MemoryRepository {
	return &MemoryRepository{
		users:       users,
		roles:       make(map[string]*domain.Role),
		permissions: make(map[string]*domain.Permission),
		rolePerms:   make(map[pair]struct{}),
		userRoles:   make(map[pair]struct{}),
	}
}

func (r *MemoryRepository) Snapshot(ctx context.Context, userID string) (*domain.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap := &domain.Snapshot{}
	if u == nil {
		return snap, nil
	}
	snap.UserFound = true
	snap.UserActive = u.IsActive
	for _, role := range r.userRolesLocked(userID) {
		g := domain.RoleGrant{ID: role.ID, Name: role.Name, Active: role.IsActive}
		for _, p := range r.rolePermissionsLocked(role.ID) {
			g.Permissions = append(g.Permissions, domain.PermissionGrant{Name: p.Name, Active: p.IsActive})
		}
		snap.Roles = append(snap.Roles, g)
	}
	return snap, nil
}

func (r *MemoryRepository) UserHasPermission(ctx context.Context, userID, permission string) (bool, error) {
	snap, err := r.Snapshot(ctx, userID)
	if err != nil || !snap.UserActive {
		return false, err
	}
	for _, g := range snap.Roles {
		if !g.Active {
			continue
		}
		for _, p := range g.Permissions {
			if p.Active && p.Name == permission {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *MemoryRepository) CreateRole(ctx context.Context, role *domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roleNameTaken(role.ID, role.Name) {
		return &autherr.ConstraintError{Op: "create role", Constraint: ConstraintRoleName}
	}
	c := *role
	r.roles[role.ID] = &c
	return nil
}

func (r *MemoryRepository) GetRole(ctx context.Context, id string) (*domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneRole(r.roles[id]), nil
}

func (r *MemoryRepository) RoleByName(ctx context.Context, name string) (*domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, role := range r.roles {
		if role.Name == name {
			return cloneRole(role), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListRoles(ctx context.Context, activeOnly bool) ([]*domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*domain.Role{}
	for _, role := range r.roles {
		if activeOnly && !role.IsActive {
			continue
		}
		out = append(out, cloneRole(role))
	}
	sortRoles(out)
	return out, nil
}

func (r *MemoryRepository) UpdateRole(ctx context.Context, role *domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.roles[role.ID]
	if !ok {
		return nil
	}
	if r.roleNameTaken(role.ID, role.Name) {
		return &autherr.ConstraintError{Op: "update role", Constraint: ConstraintRoleName}
	}
	cur.Name = role.Name
	cur.Description = role.Description
	cur.IsActive = role.IsActive
	cur.UpdatedAt = role.UpdatedAt
	return nil
}

func (r *MemoryRepository) RolePermissions(ctx context.Context, roleID string) ([]*domain.Permission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rolePermissionsLocked(roleID), nil
}

func (r *MemoryRepository) CreatePermission(ctx context.Context, p *domain.Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.permissions {
		if other.Name == p.Name {
			return &autherr.ConstraintError{Op: "create permission", Constraint: ConstraintPermissionName}
		}
	}
	c := *p
	r.permissions[p.ID] = &c
	return nil
}

func (r *MemoryRepository) PermissionByName(ctx context.Context, name string) (*domain.Permission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.permissions {
		if p.Name == name {
			return clonePermission(p), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListPermissions(ctx context.Context, activeOnly bool) ([]*domain.Permission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*domain.Permission{}
	for _, p := range r.permissions {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, clonePermission(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		return out[i].Action < out[j].Action
	})
	return out, nil
}

func (r *MemoryRepository) SetPermissionActive(ctx context.Context, name string, active bool, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.permissions {
		if p.Name == name {
			p.IsActive = active
			p.UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) AddRolePermission(ctx context.Context, roleID, permissionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roles[roleID] == nil || r.permissions[permissionID] == nil {
		return autherr.ErrNotFound
	}
	r.rolePerms[pair{roleID, permissionID}] = struct{}{}
	return nil
}

func (r *MemoryRepository) RemoveRolePermission(ctx context.Context, roleID, permissionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rolePerms, pair{roleID, permissionID})
	return nil
}

func (r *MemoryRepository) ReplaceRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roles[roleID] == nil {
		return autherr.ErrNotFound
	}
	for _, pid := range permissionIDs {
		if r.permissions[pid] == nil {
			return autherr.ErrNotFound
		}
	}
	for k := range r.rolePerms {
		if k.a == roleID {
			delete(r.rolePerms, k)
		}
	}
	for _, pid := range permissionIDs {
		r.rolePerms[pair{roleID, pid}] = struct{}{}
	}
	return nil
}

func (r *MemoryRepository) AddUserRole(ctx context.Context, userID, roleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil || r.roles[roleID] == nil {
		return autherr.ErrNotFound
	}
	r.userRoles[pair{userID, roleID}] = struct{}{}
	return nil
}

func (r *MemoryRepository) RemoveUserRole(ctx context.Context, userID, roleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.userRoles, pair{userID, roleID})
	return nil
}

func (r *MemoryRepository) UserRoles(ctx context.Context, userID string) ([]*domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userRolesLocked(userID), nil
}

func (r *MemoryRepository) userRolesLocked(userID string) []*domain.Role {
	out := []*domain.Role{}
	for k := range r.userRoles {
		if k.a == userID {
			if role := r.roles[k.b]; role != nil {
				out = append(out, cloneRole(role))
			}
		}
	}
	sortRoles(out)
	return out
}

func (r *MemoryRepository) rolePermissionsLocked(roleID string) []*domain.Permission {
	out := []*domain.Permission{}
	for k := range r.rolePerms {
		if k.a == roleID {
			if p := r.permissions[k.b]; p != nil {
				out = append(out, clonePermission(p))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *MemoryRepository) roleNameTaken(id, name string) bool {
	for oid, other := range r.roles {
		if oid != id && other.Name == name {
			return true
		}
	}
	return false
}

func sortRoles(roles []*domain.Role) {
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
}

func cloneRole(r *domain.Role) *domain.Role {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

func clonePermission(p *domain.Permission) *domain.Permission {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
