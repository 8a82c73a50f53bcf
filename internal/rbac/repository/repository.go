package repository

import (
	"context"
	"time"

	"github.com/swpuclaylee/APIFlask/internal/rbac/domain"
)

// Unique constraint names from the rbac migration.
const (
	ConstraintRoleName       = "roles_name_key"
	ConstraintPermissionName = "permissions_name_key"
)

// GraphReader reads the user → role → permission graph for resolution.
type GraphReader interface {
	// Snapshot returns the user's roles and their permissions read in one consistent view.
	// An unknown user yields a snapshot with UserFound false, not an error.
	Snapshot(ctx context.Context, userID string) (*domain.Snapshot, error)
}

// PermissionProber answers a single permission check without loading the whole snapshot.
type PermissionProber interface {
	UserHasPermission(ctx context.Context, userID, permission string) (bool, error)
}

// Repository defines persistence for roles, permissions and their associations.
// Getters return (nil, nil) for missing rows. Membership writes are idempotent.
type Repository interface {
	GraphReader
	PermissionProber

	CreateRole(ctx context.Context, r *domain.Role) error
	GetRole(ctx context.Context, id string) (*domain.Role, error)
	RoleByName(ctx context.Context, name string) (*domain.Role, error)
	ListRoles(ctx context.Context, activeOnly bool) ([]*domain.Role, error)
	UpdateRole(ctx context.Context, r *domain.Role) error
	RolePermissions(ctx context.Context, roleID string) ([]*domain.Permission, error)

	CreatePermission(ctx context.Context, p *domain.Permission) error
	PermissionByName(ctx context.Context, name string) (*domain.Permission, error)
	ListPermissions(ctx context.Context, activeOnly bool) ([]*domain.Permission, error)
	SetPermissionActive(ctx context.Context, name string, active bool, at time.Time) (bool, error)

	AddRolePermission(ctx context.Context, roleID, permissionID string) error
	RemoveRolePermission(ctx context.Context, roleID, permissionID string) error
	ReplaceRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error

	AddUserRole(ctx context.Context, userID, roleID string) error
	RemoveUserRole(ctx context.Context, userID, roleID string) error
	UserRoles(ctx context.Context, userID string) ([]*domain.Role, error)
}
