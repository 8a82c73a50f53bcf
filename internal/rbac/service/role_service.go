// Package service implements role and permission administration over the permission graph store.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
	"github.com/swpuclaylee/APIFlask/internal/db"
	"github.com/swpuclaylee/APIFlask/internal/rbac/domain"
	"github.com/swpuclaylee/APIFlask/internal/rbac/repository"
	userdomain "github.com/swpuclaylee/APIFlask/internal/user/domain"
)

// UserLookup reports whether a user exists. The user repository satisfies it.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// RoleUpdate carries the optional fields of UpdateRole.
type RoleUpdate struct {
	Name        *string
	Description *string
}

// RoleService manages roles, their permissions and user memberships.
type RoleService struct {
	repo    repository.Repository
	users   UserLookup
	clock   clock.Clock
	timeout time.Duration
}

// NewRoleService returns a RoleService. clk may be nil (wall clock); timeout bounds each call (0 = none).
func NewRoleService(repo repository.Repository, users UserLookup, clk clock.Clock, timeout time.Duration) *RoleService {
	if clk == nil {
		clk = clock.WallClock
	}
	return &RoleService{repo: repo, users: users, clock: clk, timeout: timeout}
}

// CreateRole inserts an active role. A taken name is autherr.DuplicateError on "name".
func (s *RoleService) CreateRole(ctx context.Context, name, description string) (*domain.RoleDetail, error) {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()

	name = strings.TrimSpace(name)
	if err := domain.ValidateRoleName(name); err != nil {
		return nil, err
	}
	if err := domain.ValidateDescription(description); err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	role := &domain.Role{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateRole(ctx, role); err != nil {
		return nil, roleDuplicateOr(err)
	}
	return &domain.RoleDetail{Role: *role, Permissions: []string{}}, nil
}

// GetRole returns the role, active or not, with its active permission names.
func (s *RoleService) GetRole(ctx context.Context, id string) (*domain.RoleDetail, error) {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()

	role, err := s.mustRole(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, role)
}

// ListRoles returns the active roles with their active permission names.
func (s *RoleService) ListRoles(ctx context.Context) ([]*domain.RoleDetail, error) {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()

	roles, err := s.repo.ListRoles(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.RoleDetail, 0, len(roles))
	for _, r := range roles {
		d, err := s.detail(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// UpdateRole renames the role or changes its description.
func (s *RoleService) UpdateRole(ctx context.Context, id string, upd RoleUpdate) (*domain.RoleDetail, error) {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()

	role, err := s.mustRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if err := domain.ValidateRoleName(name); err != nil {
			return nil, err
		}
		role.Name = name
	}
	if upd.Description != nil {
		if err := domain.ValidateDescription(*upd.Description); err != nil {
			return nil, err
		}
		role.Description = *upd.Description
	}
	role.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.UpdateRole(ctx, role); err != nil {
		return nil, roleDuplicateOr(err)
	}
	return s.detail(ctx, role)
}

// DeactivateRole soft deletes the role. Memberships and permission links are kept.
func (s *RoleService) DeactivateRole(ctx context.Context, id string) error {
	return s.setActive(ctx, id, false)
}

// ActivateRole reverses DeactivateRole.
func (s *RoleService) ActivateRole(ctx context.Context, id string) error {
	return s.setActive(ctx, id, true)
}

func (s *RoleService) setActive(ctx context.Context, id string, active bool) error {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()

	role, err := s.mustRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsActive == active {
		return nil
	}
	role.IsActive = active
	role.UpdatedAt = s.clock.Now().UTC()
	return s.repo.UpdateRole(ctx, role)
}

// AssignPermission links an active permission to the role. Linking twice is a no-op.
func (s *RoleService) AssignPermission(ctx context.Context, roleID, permission string) error {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()

	if _, err := s.mustRole(ctx, roleID); err != nil {
		return err
	}
	p, err := s.repo.PermissionByName(ctx, permission)
	if err != nil {
		return err
	}
	if p == nil || !p.IsActive {
		return fmt.Errorf("permission %s: %w", permission, autherr.ErrNotFound)
	}
	return s.repo.AddRolePermission(ctx, roleID, p.ID)
}

// RemovePermission unlinks the permission from the role. Removing an absent link is a no-op.
func (s *RoleService) RemovePermission(ctx context.Context, roleID, permission string) error {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()

	if _, err := s.mustRole(ctx, roleID); err != nil {
		return err
	}
	p, err := s.repo.PermissionByName(ctx, permission)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("permission %s: %w", permission, autherr.ErrNotFound)
	}
	return s.repo.RemoveRolePermission(ctx, roleID, p.ID)
}

// SetPermissions replaces the role's permissions with the active ones among names. Unknown or
// inactive names are skipped; the returned detail shows what was applied.
func (s *RoleService) SetPermissions(ctx context.Context, roleID string, names []string) (*domain.RoleDetail, error) {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()

	role, err := s.mustRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(names))
	ids := make([]string, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		p, err := s.repo.PermissionByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if p != nil && p.IsActive {
			ids = append(ids, p.ID)
		}
	}
	if err := s.repo.ReplaceRolePermissions(ctx, roleID, ids); err != nil {
		return nil, err
	}
	return s.detail(ctx, role)
}

// AssignRoleToUser grants the active role named roleName to the user. Granting twice is a no-op.
func (s *RoleService) AssignRoleToUser(ctx context.Context, userID, roleName string) error {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()

	if err := s.mustUser(ctx, userID); err != nil {
		return err
	}
	role, err := s.repo.RoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	if role == nil || !role.IsActive {
		return fmt.Errorf("role %s: %w", roleName, autherr.ErrNotFound)
	}
	return s.repo.AddUserRole(ctx, userID, role.ID)
}

// RemoveRoleFromUser revokes the named role from the user. Revoking an absent membership is a no-op.
func (s *RoleService) RemoveRoleFromUser(ctx context.Context, userID, roleName string) error {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()

	if err := s.mustUser(ctx, userID); err != nil {
		return err
	}
	role, err := s.repo.RoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	if role == nil {
		return fmt.Errorf("role %s: %w", roleName, autherr.ErrNotFound)
	}
	return s.repo.RemoveUserRole(ctx, userID, role.ID)
}

// UserRoleNames returns the names of the user's active roles, sorted.
func (s *RoleService) UserRoleNames(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()

	if err := s.mustUser(ctx, userID); err != nil {
		return nil, err
	}
	roles, err := s.repo.UserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, r := range roles {
		if r.IsActive {
			out = append(out, r.Name)
		}
	}
	return out, nil
}

func (s *RoleService) mustRole(ctx context.Context, id string) (*domain.Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, fmt.Errorf("role %s: %w", id, autherr.ErrNotFound)
	}
	return role, nil
}

func (s *RoleService) mustUser(ctx context.Context, id string) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("user %s: %w", id, autherr.ErrNotFound)
	}
	return nil
}

func (s *RoleService) detail(ctx context.Context, role *domain.Role) (*domain.RoleDetail, error) {
	perms, err := s.repo.RolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	d := &domain.RoleDetail{Role: *role, Permissions: []string{}}
	for _, p := range perms {
		if p.IsActive {
			d.Permissions = append(d.Permissions, p.Name)
		}
	}
	return d, nil
}

func roleDuplicateOr(err error) error {
	if errors.Is(err, autherr.ErrConstraintViolation) {
		return autherr.Duplicate("role name")
	}
	return err
}
