package repository

import (
	"context"
	"time"

	"github.com/swpuclaylee/APIFlask/internal/user/domain"
)

// Repository defines persistence for users. Getters return (nil, nil) when the row does not exist.
// Writes that hit a unique index return an error matching autherr.ErrConstraintViolation.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// Update writes username, email, is_active, is_admin and updated_at.
	Update(ctx context.Context, u *domain.User) error
	// UpdatePassword replaces the hash and stamps password_changed_at.
	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
	// TouchLogin records a successful login.
	TouchLogin(ctx context.Context, id string, at time.Time) error
	// Delete removes the user; reports whether a row was deleted.
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, filter domain.ListFilter) (*domain.Page, error)
}
