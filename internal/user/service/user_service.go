// Package service implements user administration on top of the credential store.
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
	"github.com/swpuclaylee/APIFlask/internal/security"
	"github.com/swpuclaylee/APIFlask/internal/user/domain"
	userrepo "github.com/swpuclaylee/APIFlask/internal/user/repository"
)

// PasswordHasher hashes plaintext passwords for storage.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// CreateInput is the input of Create. IsActive nil means active.
type CreateInput struct {
	Username string
	Email    string
	Password string
	IsAdmin  bool
	IsActive *bool
}

// UserService creates, reads, updates and deletes users.
type UserService struct {
	repo    userrepo.Repository
	hasher  PasswordHasher
	clock   clock.Clock
	timeout time.Duration
}

// NewUserService returns a UserService. clk may be nil (wall clock); timeout bounds each call (0 = none).
func NewUserService(repo userrepo.Repository, hasher PasswordHasher, clk clock.Clock, timeout time.Duration) *UserService {
	if clk == nil {
		clk = clock.WallClock
	}
	return &UserService{repo: repo, hasher: hasher, clock: clk, timeout: timeout}
}

// Create validates and inserts a user. Uniqueness of username and email is decided by the
// store; a violation is returned as autherr.DuplicateError.
func (s *UserService) Create(ctx context.Context, in CreateInput) (*domain.User, error) {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()

	u := &domain.User{Username: in.Username, Email: in.Email, IsAdmin: in.IsAdmin, IsActive: true}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	u.Normalize()
	if err := domain.ValidateUsername(u.Username); err != nil {
		return nil, err
	}
	if err := domain.ValidateEmail(u.Email); err != nil {
		return nil, err
	}
	if err := security.ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	u.ID = uuid.New().String()
	u.PasswordHash = hash
	u.CreatedAt = now
	u.UpdatedAt = now

	if err := s.repo.Create(ctx, u); err != nil {
		return nil, duplicateOr(err)
	}
	return u, nil
}

// Get returns the user or autherr.ErrNotFound.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()

	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", id, autherr.ErrNotFound)
	}
	return u, nil
}

// Update applies upd to the user. Deactivating keeps role memberships.
func (s *UserService) Update(ctx context.Context, id string, upd domain.Update) (*domain.User, error) {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()

	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", id, autherr.ErrNotFound)
	}
	if upd.Empty() {
		return u, nil
	}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	u.Normalize()
	if upd.Username != nil {
		if err := domain.ValidateUsername(u.Username); err != nil {
			return nil, err
		}
	}
	if upd.Email != nil {
		if err := domain.ValidateEmail(u.Email); err != nil {
			return nil, err
		}
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	if upd.IsAdmin != nil {
		u.IsAdmin = *upd.IsAdmin
	}
	u.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, duplicateOr(err)
	}
	return u, nil
}

// Delete removes the user or returns autherr.ErrNotFound.
func (s *UserService) Delete(ctx context.Context, id string) error {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()

	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %s: %w", id, autherr.ErrNotFound)
	}
	return nil
}

// List returns one page of users.
func (s *UserService) List(ctx context.Context, filter domain.ListFilter) (*domain.Page, error) {
	ctx, cancel := db.Bounded(ctx, s.timeout)
	defer cancel()

	filter.Normalize()
	return s.repo.List(ctx, filter)
}

// duplicateOr maps a unique violation to the field it concerns.
func duplicateOr(err error) error {
	if !errors.Is(err, autherr.ErrConstraintViolation) {
		return err
	}
	switch autherr.Constraint(err) {
	case userrepo.ConstraintUsername:
		return autherr.Duplicate("username")
	case userrepo.ConstraintEmail:
		return autherr.Duplicate("email")
	default:
		return autherr.Duplicate("username or email")
	}
}
