package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
	"github.com/swpuclaylee/APIFlask/internal/rbac/domain"
	userdomain "github.com/swpuclaylee/APIFlask/internal/user/domain"
	userrepo "github.com/swpuclaylee/APIFlask/internal/user/repository"
)

func newMemory(t *testing.T) (*MemoryRepository, *userrepo.MemoryRepository) {
	t.Helper()
	users := userrepo.NewMemoryRepository()
	return NewMemoryRepository(users), users
}

func addUser(t *testing.T, users *userrepo.MemoryRepository, id string, active bool) {
	t.Helper()
	now := time.Now().UTC()
	if err := users.Create(context.Background(), &userdomain.User{
		ID: id, Username: id, Email: id + "@example.com", IsActive: active, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}
}

func TestMemoryRepository_SnapshotAndMembership(t *testing.T) {
	ctx := context.Background()
	repo, users := newMemory(t)
	addUser(t, users, "alice", true)

	if err := repo.CreateRole(ctx, &domain.Role{ID: "r1", Name: "editor", IsActive: true}); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := repo.CreatePermission(ctx, &domain.Permission{ID: "p1", Name: "doc:write", Resource: "doc", Action: "write", IsActive: true}); err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := repo.AddRolePermission(ctx, "r1", "p1"); err != nil {
			t.Fatalf("AddRolePermission #%d: %v", i, err)
		}
		if err := repo.AddUserRole(ctx, "alice", "r1"); err != nil {
			t.Fatalf("AddUserRole #%d: %v", i, err)
		}
	}

	snap, err := repo.Snapshot(ctx, "alice")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !snap.UserFound || !snap.UserActive || len(snap.Roles) != 1 || len(snap.Roles[0].Permissions) != 1 {
		t.Fatalf("Snapshot = %+v", snap)
	}
	ok, _ := repo.UserHasPermission(ctx, "alice", "doc:write")
	if !ok {
		t.Error("UserHasPermission = false, want true")
	}

	if err := repo.RemoveUserRole(ctx, "alice", "r1"); err != nil {
		t.Fatalf("RemoveUserRole: %v", err)
	}
	if err := repo.RemoveUserRole(ctx, "alice", "r1"); err != nil {
		t.Fatalf("RemoveUserRole again: %v", err)
	}
	ok, _ = repo.UserHasPermission(ctx, "alice", "doc:write")
	if ok {
		t.Error("UserHasPermission after removal = true")
	}
}

// lockCheckingUsers records whether the graph lock was free while a user was read.
type lockCheckingUsers struct {
	UserLookup
	repo     *MemoryRepository
	unlocked bool
}

func (u *lockCheckingUsers) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	if u.repo.mu.TryLock() {
		u.unlocked = true
		u.repo.mu.Unlock()
	}
	return u.UserLookup.GetByID(ctx, id)
}

func TestMemoryRepository_ReadsUserUnderGraphLock(t *testing.T) {
	ctx := context.Background()
	users := userrepo.NewMemoryRepository()
	addUser(t, users, "alice", true)
	check := &lockCheckingUsers{UserLookup: users}
	repo := NewMemoryRepository(check)
	check.repo = repo
	if err := repo.CreateRole(ctx, &domain.Role{ID: "r1", Name: "editor", IsActive: true}); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	if err := repo.AddUserRole(ctx, "alice", "r1"); err != nil {
		t.Fatalf("AddUserRole: %v", err)
	}
	snap, err := repo.Snapshot(ctx, "alice")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !snap.UserActive || len(snap.Roles) != 1 {
		t.Errorf("Snapshot = %+v", snap)
	}
	if check.unlocked {
		t.Error("user read while the graph lock was free")
	}
}

func TestMemoryRepository_UniqueNames(t *testing.T) {
	ctx := context.Background()
	repo, _ := newMemory(t)
	_ = repo.CreateRole(ctx, &domain.Role{ID: "r1", Name: "editor"})
	err := repo.CreateRole(ctx, &domain.Role{ID: "r2", Name: "editor"})
	if !errors.Is(err, autherr.ErrConstraintViolation) || autherr.Constraint(err) != ConstraintRoleName {
		t.Errorf("duplicate role err = %v", err)
	}
	_ = repo.CreateRole(ctx, &domain.Role{ID: "r2", Name: "viewer"})
	err = repo.UpdateRole(ctx, &domain.Role{ID: "r2", Name: "editor"})
	if !errors.Is(err, autherr.ErrConstraintViolation) {
		t.Errorf("rename onto existing err = %v", err)
	}

	_ = repo.CreatePermission(ctx, &domain.Permission{ID: "p1", Name: "doc:read"})
	err = repo.CreatePermission(ctx, &domain.Permission{ID: "p2", Name: "doc:read"})
	if autherr.Constraint(err) != ConstraintPermissionName {
		t.Errorf("duplicate permission err = %v", err)
	}
}

func TestMemoryRepository_MembershipRequiresRows(t *testing.T) {
	ctx := context.Background()
	repo, _ := newMemory(t)
	if err := repo.AddUserRole(ctx, "ghost", "r1"); !errors.Is(err, autherr.ErrNotFound) {
		t.Errorf("AddUserRole unknown = %v, want ErrNotFound", err)
	}
	if err := repo.AddRolePermission(ctx, "r1", "p1"); !errors.Is(err, autherr.ErrNotFound) {
		t.Errorf("AddRolePermission unknown = %v, want ErrNotFound", err)
	}
}

func TestMemoryRepository_ReplaceRolePermissions(t *testing.T) {
	ctx := context.Background()
	repo, _ := newMemory(t)
	_ = repo.CreateRole(ctx, &domain.Role{ID: "r1", Name: "editor", IsActive: true})
	for _, p := range []*domain.Permission{
		{ID: "p1", Name: "doc:read", Resource: "doc", Action: "read", IsActive: true},
		{ID: "p2", Name: "doc:write", Resource: "doc", Action: "write", IsActive: true},
	} {
		_ = repo.CreatePermission(ctx, p)
	}
	_ = repo.AddRolePermission(ctx, "r1", "p1")

	if err := repo.ReplaceRolePermissions(ctx, "r1", []string{"p2"}); err != nil {
		t.Fatalf("ReplaceRolePermissions: %v", err)
	}
	perms, _ := repo.RolePermissions(ctx, "r1")
	if len(perms) != 1 || perms[0].Name != "doc:write" {
		t.Errorf("RolePermissions = %+v", perms)
	}
	if err := repo.ReplaceRolePermissions(ctx, "r1", []string{"missing"}); !errors.Is(err, autherr.ErrNotFound) {
		t.Errorf("replace with unknown permission = %v", err)
	}
	perms, _ = repo.RolePermissions(ctx, "r1")
	if len(perms) != 1 {
		t.Errorf("failed replace must leave permissions untouched, got %d", len(perms))
	}
}

func TestMemoryRepository_ListAndActivation(t *testing.T) {
	ctx := context.Background()
	repo, _ := newMemory(t)
	_ = repo.CreateRole(ctx, &domain.Role{ID: "r1", Name: "zeta", IsActive: true})
	_ = repo.CreateRole(ctx, &domain.Role{ID: "r2", Name: "alpha", IsActive: false})
	_ = repo.CreatePermission(ctx, &domain.Permission{ID: "p1", Name: "b:read", Resource: "b", Action: "read", IsActive: true})
	_ = repo.CreatePermission(ctx, &domain.Permission{ID: "p2", Name: "a:read", Resource: "a", Action: "read", IsActive: true})

	all, _ := repo.ListRoles(ctx, false)
	if len(all) != 2 || all[0].Name != "alpha" {
		t.Errorf("ListRoles(all) = %+v", all)
	}
	active, _ := repo.ListRoles(ctx, true)
	if len(active) != 1 || active[0].Name != "zeta" {
		t.Errorf("ListRoles(active) = %+v", active)
	}

	ok, _ := repo.SetPermissionActive(ctx, "a:read", false, time.Now())
	if !ok {
		t.Fatal("SetPermissionActive = false")
	}
	perms, _ := repo.ListPermissions(ctx, true)
	if len(perms) != 1 || perms[0].Name != "b:read" {
		t.Errorf("ListPermissions(active) = %+v", perms)
	}
	if ok, _ := repo.SetPermissionActive(ctx, "zz:read", true, time.Now()); ok {
		t.Error("SetPermissionActive on unknown name = true")
	}
}
