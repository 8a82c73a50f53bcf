// Package seed installs the permission catalog, the seed roles and the default admin account.
// Every step is idempotent.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
	"github.com/swpuclaylee/APIFlask/internal/logging"
	rbacdomain "github.com/swpuclaylee/APIFlask/internal/rbac/domain"
	userdomain "github.com/swpuclaylee/APIFlask/internal/user/domain"
	usersvc "github.com/swpuclaylee/APIFlask/internal/user/service"
)

const (
	AdminUsername = "admin"
	AdminEmail    = "admin@example.com"
)

// Catalog installs permissions.
type Catalog interface {
	EnsureCatalog(ctx context.Context) (int, error)
}

// Roles installs the seed roles and grants roles to users.
type Roles interface {
	EnsureSeedRoles(ctx context.Context) (int, error)
	AssignRoleToUser(ctx context.Context, userID, roleName string) error
}

// Users looks up and creates accounts.
type Users interface {
	GetByUsername(ctx context.Context, username string) (*userdomain.User, error)
}

// Creator creates accounts with a hashed password.
type Creator interface {
	Create(ctx context.Context, in usersvc.CreateInput) (*userdomain.User, error)
}

// Config wires the seeder. AdminPassword empty skips the admin account.
type Config struct {
	Catalog       Catalog
	Roles         Roles
	Users         Users
	Creator       Creator
	AdminPassword string
	Logger        *logrus.Logger
}

// Result counts what Run created.
type Result struct {
	Permissions  int
	Roles        int
	AdminCreated bool
}

// Run installs the catalog, then the roles, then the admin account holding super_admin.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	log := logging.OrDiscard(cfg.Logger).WithField("component", "seed")
	res := &Result{}

	n, err := cfg.Catalog.EnsureCatalog(ctx)
	if err != nil {
		return res, fmt.Errorf("seed permissions: %w", err)
	}
	res.Permissions = n

	n, err = cfg.Roles.EnsureSeedRoles(ctx)
	if err != nil {
		return res, fmt.Errorf("seed roles: %w", err)
	}
	res.Roles = n

	if cfg.AdminPassword == "" {
		log.Info("no admin password configured, skipping admin account")
		return res, nil
	}
	admin, err := cfg.Users.GetByUsername(ctx, AdminUsername)
	if err != nil {
		return res, fmt.Errorf("seed admin lookup: %w", err)
	}
	if admin == nil {
		admin, err = cfg.Creator.Create(ctx, usersvc.CreateInput{
			Username: AdminUsername,
			Email:    AdminEmail,
			Password: cfg.AdminPassword,
			IsAdmin:  true,
		})
		if err != nil && !errors.Is(err, autherr.ErrDuplicateIdentity) {
			return res, fmt.Errorf("seed admin: %w", err)
		}
		res.AdminCreated = err == nil
		if admin == nil {
			// Lost a race with another seeder, or the email is held by a different account.
			if admin, err = cfg.Users.GetByUsername(ctx, AdminUsername); err != nil {
				return res, fmt.Errorf("seed admin reload: %w", err)
			}
			if admin == nil {
				return res, fmt.Errorf("seed admin: %s is held by another account", AdminEmail)
			}
		}
	}
	if err := cfg.Roles.AssignRoleToUser(ctx, admin.ID, rbacdomain.RoleSuperAdmin); err != nil {
		return res, fmt.Errorf("seed admin role: %w", err)
	}
	log.WithFields(logrus.Fields{
		"permissions_created": res.Permissions,
		"roles_created":       res.Roles,
		"admin_created":       res.AdminCreated,
	}).Info("seed complete")
	return res, nil
}
