package service

import (
	"context"
	"errors"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
	"github.com/swpuclaylee/APIFlask/internal/rbac/domain"
)

// EnsureSeedRoles creates each seed role that does not exist yet and grants it its permissions.
// Existing roles are never modified, so operators can edit seeded roles safely. Returns the number
// of roles created.
func (s *RoleService) EnsureSeedRoles(ctx context.Context) (int, error) {
	created := 0
	for _, seed := range domain.SeedRoles() {
		existing, err := s.repo.RoleByName(ctx, seed.Name)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}
		role, err := s.CreateRole(ctx, seed.Name, seed.Description)
		if errors.Is(err, autherr.ErrDuplicateIdentity) {
			continue
		}
		if err != nil {
			return created, err
		}
		if _, err := s.SetPermissions(ctx, role.ID, seed.Permissions); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
