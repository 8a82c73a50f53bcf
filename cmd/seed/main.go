// seed installs the permission catalog, the seed roles and the admin account (admin /
// admin@example.com, password from SEED_ADMIN_PASSWORD). Idempotent; safe to run on every deploy.
package main

import (
	"context"

	"github.com/juju/clock"

	"github.com/swpuclaylee/APIFlask/internal/config"
	"github.com/swpuclaylee/APIFlask/internal/db"
	"github.com/swpuclaylee/APIFlask/internal/logging"
	rbacrepo "github.com/swpuclaylee/APIFlask/internal/rbac/repository"
	rbacsvc "github.com/swpuclaylee/APIFlask/internal/rbac/service"
	"github.com/swpuclaylee/APIFlask/internal/security"
	"github.com/swpuclaylee/APIFlask/internal/seed"
	"github.com/swpuclaylee/APIFlask/internal/user/repository"
	usersvc "github.com/swpuclaylee/APIFlask/internal/user/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db: %v", err)
	}
	defer conn.Close()

	timeout := cfg.StoreTimeoutDuration()
	users := repository.NewPostgresRepository(conn)
	graph := rbacrepo.NewPostgresRepository(conn)
	res, err := seed.Run(ctx, seed.Config{
		Catalog:       rbacsvc.NewPermissionService(graph, clock.WallClock, timeout),
		Roles:         rbacsvc.NewRoleService(graph, users, clock.WallClock, timeout),
		Users:         users,
		Creator:       usersvc.NewUserService(users, security.NewHasher(cfg.BcryptCost), clock.WallClock, timeout),
		AdminPassword: cfg.SeedAdminPassword,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatalf("seed: %v", err)
	}
	if !res.AdminCreated && res.Permissions == 0 && res.Roles == 0 {
		logger.Info("seed already applied, nothing to do")
	}
}
