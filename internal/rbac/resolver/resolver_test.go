package resolver

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
	"github.com/swpuclaylee/APIFlask/internal/rbac/domain"
	"github.com/swpuclaylee/APIFlask/internal/rbac/repository"
	userdomain "github.com/swpuclaylee/APIFlask/internal/user/domain"
	userrepo "github.com/swpuclaylee/APIFlask/internal/user/repository"
)

type fixture struct {
	users *userrepo.MemoryRepository
	graph *repository.MemoryRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := userrepo.NewMemoryRepository()
	return &fixture{users: users, graph: repository.NewMemoryRepository(users)}
}

func (f *fixture) user(t *testing.T, id string, active bool) {
	t.Helper()
	now := time.Now().UTC()
	if err := f.users.Create(context.Background(), &userdomain.User{
		ID: id, Username: id, Email: id + "@example.com", IsActive: active, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
}

func (f *fixture) role(t *testing.T, id, roleName string, perms ...string) {
	t.Helper()
	ctx := context.Background()
	if err := f.graph.CreateRole(ctx, &domain.Role{ID: id, Name: roleName, IsActive: true}); err != nil {
		t.Fatalf("create role %s: %v", roleName, err)
	}
	for _, name := range perms {
		p, _ := f.graph.PermissionByName(ctx, name)
		if p == nil {
			np, err := domain.NewPermission(name, "")
			if err != nil {
				t.Fatalf("permission %s: %v", name, err)
			}
			np.ID = "perm-" + name
			if err := f.graph.CreatePermission(ctx, np); err != nil {
				t.Fatalf("create permission %s: %v", name, err)
			}
			p = np
		}
		if err := f.graph.AddRolePermission(ctx, id, p.ID); err != nil {
			t.Fatalf("grant %s to %s: %v", p.Name, id, err)
		}
	}
}

func (f *fixture) grant(t *testing.T, userID, roleID string) {
	t.Helper()
	if err := f.graph.AddUserRole(context.Background(), userID, roleID); err != nil {
		t.Fatalf("assign %s to %s: %v", roleID, userID, err)
	}
}

// snapshotOnly hides the prober so the snapshot walk is exercised.
type snapshotOnly struct {
	repository.GraphReader
}

func resolvers(f *fixture) map[string]*Resolver {
	return map[string]*Resolver{
		"probe":    NewResolver(f.graph, time.Second),
		"snapshot": NewResolver(snapshotOnly{f.graph}, time.Second),
	}
}

func TestResolver_AliceEditorScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "alice", true)
	f.role(t, "r-editor", "editor", "doc:write")
	f.grant(t, "alice", "r-editor")

	for name, r := range resolvers(f) {
		t.Run(name, func(t *testing.T) {
			ok, err := r.HasPermission(ctx, "alice", "doc:write")
			if err != nil || !ok {
				t.Fatalf("HasPermission(doc:write) = %v, %v; want true", ok, err)
			}
			ok, _ = r.HasPermission(ctx, "alice", "doc:delete")
			if ok {
				t.Error("HasPermission(doc:delete) = true, want false")
			}
		})
	}

	if err := f.graph.RemoveUserRole(ctx, "alice", "r-editor"); err != nil {
		t.Fatalf("RemoveUserRole: %v", err)
	}
	for name, r := range resolvers(f) {
		t.Run(name+"/after removal", func(t *testing.T) {
			ok, err := r.HasPermission(ctx, "alice", "doc:write")
			if err != nil || ok {
				t.Errorf("HasPermission after removal = %v, %v; want false", ok, err)
			}
		})
	}
}

func TestResolver_EffectivePermissions_DedupedAndSorted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "alice", true)
	f.role(t, "r1", "editor", "doc:write", "doc:read")
	f.role(t, "r2", "viewer", "doc:read", "report:read")
	f.grant(t, "alice", "r1")
	f.grant(t, "alice", "r2")

	got, err := NewResolver(f.graph, 0).EffectivePermissions(ctx, "alice")
	if err != nil {
		t.Fatalf("EffectivePermissions: %v", err)
	}
	want := []string{"doc:read", "doc:write", "report:read"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("EffectivePermissions = %v, want %v", got, want)
	}
}

func TestResolver_Monotonic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "bob", true)
	f.role(t, "r1", "editor", "doc:write")
	f.role(t, "r2", "viewer", "doc:read")
	f.grant(t, "bob", "r1")
	r := NewResolver(f.graph, 0)

	before, _ := r.EffectivePermissions(ctx, "bob")
	f.grant(t, "bob", "r2")
	after, _ := r.EffectivePermissions(ctx, "bob")

	have := make(map[string]bool)
	for _, p := range after {
		have[p] = true
	}
	for _, p := range before {
		if !have[p] {
			t.Errorf("adding a role removed %q", p)
		}
	}
	if len(after) != len(before)+1 {
		t.Errorf("after = %v, want one more than %v", after, before)
	}
}

func TestResolver_InactiveFiltering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "alice", true)
	f.user(t, "dora", false)
	f.role(t, "r1", "editor", "doc:write", "doc:read")
	f.grant(t, "alice", "r1")
	f.grant(t, "dora", "r1")

	for name, r := range resolvers(f) {
		t.Run(name, func(t *testing.T) {
			got, _ := r.EffectivePermissions(ctx, "dora")
			if len(got) != 0 {
				t.Errorf("inactive user permissions = %v, want none", got)
			}
			if ok, _ := r.HasPermission(ctx, "dora", "doc:read"); ok {
				t.Error("inactive user HasPermission = true")
			}
		})
	}

	if ok, err := f.graph.SetPermissionActive(ctx, "doc:write", false, time.Now()); err != nil || !ok {
		t.Fatalf("SetPermissionActive: %v %v", ok, err)
	}
	for name, r := range resolvers(f) {
		t.Run(name+"/inactive permission", func(t *testing.T) {
			if ok, _ := r.HasPermission(ctx, "alice", "doc:write"); ok {
				t.Error("inactive permission still granted")
			}
			if ok, _ := r.HasPermission(ctx, "alice", "doc:read"); !ok {
				t.Error("active sibling permission lost")
			}
		})
	}
}

func TestResolver_DeactivatedRoleKeepsAssociations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "alice", true)
	f.role(t, "r1", "editor", "doc:write")
	f.grant(t, "alice", "r1")
	r := NewResolver(f.graph, 0)

	role, _ := f.graph.GetRole(ctx, "r1")
	role.IsActive = false
	if err := f.graph.UpdateRole(ctx, role); err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if ok, _ := r.HasPermission(ctx, "alice", "doc:write"); ok {
		t.Error("deactivated role still grants")
	}
	if ok, _ := r.HasRole(ctx, "alice", "editor"); ok {
		t.Error("HasRole on deactivated role = true")
	}

	perms, _ := f.graph.RolePermissions(ctx, "r1")
	members, _ := f.graph.UserRoles(ctx, "alice")
	if len(perms) != 1 || len(members) != 1 {
		t.Fatalf("associations lost: perms=%d members=%d", len(perms), len(members))
	}

	role.IsActive = true
	_ = f.graph.UpdateRole(ctx, role)
	if ok, _ := r.HasPermission(ctx, "alice", "doc:write"); !ok {
		t.Error("reactivated role does not grant")
	}
	if ok, _ := r.HasRole(ctx, "alice", "editor"); !ok {
		t.Error("HasRole after reactivation = false")
	}
}

func TestResolver_Combinators(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "alice", true)
	f.role(t, "r1", "editor", "user:read", "role:read")
	f.grant(t, "alice", "r1")
	r := NewResolver(f.graph, 0)

	tests := []struct {
		name string
		fn   func(context.Context, string, ...string) (bool, error)
		args []string
		want bool
	}{
		{"any hit", r.HasAnyPermission, []string{"user:delete", "role:read"}, true},
		{"any miss", r.HasAnyPermission, []string{"user:delete"}, false},
		{"any empty", r.HasAnyPermission, nil, false},
		{"all hit", r.HasAllPermissions, []string{"user:read", "role:read"}, true},
		{"all partial", r.HasAllPermissions, []string{"user:read", "role:update"}, false},
		{"all empty", r.HasAllPermissions, nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.fn(ctx, "alice", tc.args...)
			if err != nil {
				t.Fatalf("err = %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestResolver_UnknownUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for name, r := range resolvers(f) {
		t.Run(name, func(t *testing.T) {
			perms, err := r.EffectivePermissions(ctx, "ghost")
			if err != nil || len(perms) != 0 {
				t.Errorf("EffectivePermissions = %v, %v", perms, err)
			}
			ok, err := r.HasPermission(ctx, "ghost", "user:read")
			if err != nil || ok {
				t.Errorf("HasPermission = %v, %v", ok, err)
			}
			roles, err := r.Roles(ctx, "ghost")
			if err != nil || len(roles) != 0 {
				t.Errorf("Roles = %v, %v", roles, err)
			}
		})
	}
}

type failingGraph struct{}

func (failingGraph) Snapshot(context.Context, string) (*domain.Snapshot, error) {
	return nil, autherr.Unavailable("snapshot", errors.New("connection refused"))
}

func TestResolver_StoreErrorPropagates(t *testing.T) {
	r := NewResolver(failingGraph{}, 0)
	if _, err := r.EffectivePermissions(context.Background(), "alice"); !errors.Is(err, autherr.ErrStoreUnavailable) {
		t.Errorf("EffectivePermissions err = %v, want ErrStoreUnavailable", err)
	}
	if _, err := r.HasPermission(context.Background(), "alice", "x:y"); !errors.Is(err, autherr.ErrStoreUnavailable) {
		t.Errorf("HasPermission err = %v, want ErrStoreUnavailable", err)
	}
}
