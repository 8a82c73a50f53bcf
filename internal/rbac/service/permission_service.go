package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
	"github.com/swpuclaylee/APIFlask/internal/db"
	"github.com/swpuclaylee/APIFlask/internal/rbac/domain"
	"github.com/swpuclaylee/APIFlask/internal/rbac/repository"
)

// PermissionService manages the permission catalogue rows.
type PermissionService struct {
	repo    repository.Repository
	clock   clock.Clock
	timeout time.Duration
}

// NewPermissionService returns a PermissionService. clk may be nil (wall clock).
func NewPermissionService(repo repository.Repository, clk clock.Clock, timeout time.Duration) *PermissionService {
	if clk == nil {
		clk = clock.WallClock
	}
	return &PermissionService{repo: repo, clock: clk, timeout: timeout}
}

// ListPermissions returns active permissions ordered by resource and action.
func (s *PermissionService) ListPermissions(ctx context.Context) ([]*domain.Permission, error) {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()
	return s.repo.ListPermissions(ctx, true)
}

// CreatePermission inserts an active permission parsed from "resource:action".
func (s *PermissionService) CreatePermission(ctx context.Context, name, description string) (*domain.Permission, error) {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()

	p, err := domain.NewPermission(name, description)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	p.ID = uuid.New().String()
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.repo.CreatePermission(ctx, p); err != nil {
		if errors.Is(err, autherr.ErrConstraintViolation) {
			return nil, autherr.Duplicate("permission name")
		}
		return nil, err
	}
	return p, nil
}

// SetActive activates or deactivates the named permission. Deactivation keeps role links.
func (s *PermissionService) SetActive(ctx context.Context, name string, active bool) error {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()

	ok, err := s.repo.SetPermissionActive(ctx, name, active, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("permission %s: %w", name, autherr.ErrNotFound)
	}
	return nil
}

// EnsureCatalog creates every catalogue permission that does not exist yet and returns the number
// created. Existing rows, including deactivated ones, are left untouched.
func (s *PermissionService) EnsureCatalog(ctx context.Context) (int, error) {
	created := 0
	for _, p := range domain.AllPermissions() {
		existing, err := s.repo.PermissionByName(ctx, p.Name)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}
		if _, err := s.CreatePermission(ctx, p.Name, p.Description); err != nil {
			if errors.Is(err, autherr.ErrDuplicateIdentity) {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}
