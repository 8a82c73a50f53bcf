package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
)

// mockChecker implements Checker over a fixed grant table.
type mockChecker struct {
	perms map[string]map[string]bool
	roles map[string]map[string]bool
	err   error
}

func (m *mockChecker) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.perms[userID][permission], nil
}

func (m *mockChecker) HasRole(ctx context.Context, userID, role string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.roles[userID][role], nil
}

func (m *mockChecker) HasAnyPermission(ctx context.Context, userID string, permissions ...string) (bool, error) {
	for _, p := range permissions {
		if ok, err := m.HasPermission(ctx, userID, p); err != nil || ok {
			return ok, err
		}
	}
	return false, m.err
}

func (m *mockChecker) HasAllPermissions(ctx context.Context, userID string, permissions ...string) (bool, error) {
	for _, p := range permissions {
		if ok, err := m.HasPermission(ctx, userID, p); err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func newChecker() *mockChecker {
	return &mockChecker{
		perms: map[string]map[string]bool{
			"user-1": {"user:read": true, "role:read": true},
		},
		roles: map[string]map[string]bool{
			"user-1": {"editor": true},
		},
	}
}

func TestRequirement_Check(t *testing.T) {
	c := newChecker()
	tests := []struct {
		name    string
		req     Requirement
		wantErr string
	}{
		{"permission held", Permission("user:read"), ""},
		{"permission missing", Permission("user:delete"), "insufficient permission, requires: user:delete"},
		{"role held", Role("editor"), ""},
		{"role missing", Role("admin"), "insufficient permission, requires: role admin"},
		{"any of", AnyOf("user:delete", "role:read"), ""},
		{"any of none", AnyOf("user:delete", "role:delete"), "insufficient permission, requires: any of user:delete, role:delete"},
		{"all of", AllOf("user:read", "role:read"), ""},
		{"all of partial", AllOf("user:update", "role:read"), "insufficient permission, requires: all of user:update, role:read"},
		{"zero", Requirement{}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Check(context.Background(), c, "user-1")
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Check: %v", err)
				}
				return
			}
			if !errors.Is(err, autherr.ErrInsufficientPermission) {
				t.Fatalf("Check err = %v, want ErrInsufficientPermission", err)
			}
			if err.Error() != tc.wantErr {
				t.Errorf("Check err = %q, want %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestRequirement_UnknownUserDenied(t *testing.T) {
	err := Permission("user:read").Check(context.Background(), newChecker(), "ghost")
	if !errors.Is(err, autherr.ErrInsufficientPermission) {
		t.Errorf("Check err = %v, want ErrInsufficientPermission", err)
	}
}

func TestRequirement_StoreErrorPassesThrough(t *testing.T) {
	c := newChecker()
	c.err = autherr.Unavailable("snapshot", errors.New("connection refused"))
	err := Permission("user:read").Check(context.Background(), c, "user-1")
	if !errors.Is(err, autherr.ErrStoreUnavailable) {
		t.Errorf("Check err = %v, want ErrStoreUnavailable", err)
	}
	if errors.Is(err, autherr.ErrInsufficientPermission) {
		t.Error("store failure must not read as a denial")
	}
}

func TestRequirement_String(t *testing.T) {
	names := []string{"a:b", "c:d"}
	r := AnyOf(names...)
	names[0] = "mutated"
	if r.String() != "any of a:b, c:d" {
		t.Errorf("String() = %q; AnyOf must copy its arguments", r.String())
	}
	if !(Requirement{}).IsZero() || Permission("x:y").IsZero() {
		t.Error("IsZero mismatch")
	}
}
