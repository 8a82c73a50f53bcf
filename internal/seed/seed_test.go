package seed

import (
	"context"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/swpuclaylee/APIFlask/internal/logging"
	rbacdomain "github.com/swpuclaylee/APIFlask/internal/rbac/domain"
	rbacrepo "github.com/swpuclaylee/APIFlask/internal/rbac/repository"
	"github.com/swpuclaylee/APIFlask/internal/rbac/resolver"
	rbacsvc "github.com/swpuclaylee/APIFlask/internal/rbac/service"
	"github.com/swpuclaylee/APIFlask/internal/security"
	userdomain "github.com/swpuclaylee/APIFlask/internal/user/domain"
	userrepo "github.com/swpuclaylee/APIFlask/internal/user/repository"
	usersvc "github.com/swpuclaylee/APIFlask/internal/user/service"
)

type fixture struct {
	cfg      Config
	users    *userrepo.MemoryRepository
	resolver *resolver.Resolver
}

func newFixture(password string) *fixture {
	clk := testclock.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	users := userrepo.NewMemoryRepository()
	graph := rbacrepo.NewMemoryRepository(users)
	return &fixture{
		cfg: Config{
			Catalog:       rbacsvc.NewPermissionService(graph, clk, 0),
			Roles:         rbacsvc.NewRoleService(graph, users, clk, 0),
			Users:         users,
			Creator:       usersvc.NewUserService(users, security.NewHasher(bcrypt.MinCost), clk, 0),
			AdminPassword: password,
			Logger:        logging.Discard(),
		},
		users:    users,
		resolver: resolver.NewResolver(graph, 0),
	}
}

func TestRun_SeedsEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture("admin123")

	res, err := Run(ctx, f.cfg)

	require.NoError(t, err)
	assert.Equal(t, len(rbacdomain.AllPermissions()), res.Permissions)
	assert.Equal(t, len(rbacdomain.SeedRoles()), res.Roles)
	assert.True(t, res.AdminCreated)

	admin, err := f.users.GetByUsername(ctx, AdminUsername)
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.True(t, admin.IsAdmin)
	assert.Equal(t, AdminEmail, admin.Email)
	ok, err := f.resolver.HasRole(ctx, admin.ID, rbacdomain.RoleSuperAdmin)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.resolver.HasPermission(ctx, admin.ID, "system:log")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture("admin123")
	_, err := Run(ctx, f.cfg)
	require.NoError(t, err)

	res, err := Run(ctx, f.cfg)

	require.NoError(t, err)
	assert.Equal(t, &Result{}, res)
	filter := userdomain.ListFilter{}
	filter.Normalize()
	page, err := f.users.List(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestRun_WithoutAdminPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture("")

	res, err := Run(ctx, f.cfg)

	require.NoError(t, err)
	assert.False(t, res.AdminCreated)
	admin, err := f.users.GetByUsername(ctx, AdminUsername)
	require.NoError(t, err)
	assert.Nil(t, admin)
}
