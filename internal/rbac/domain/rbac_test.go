package domain

import (
	"strings"
	"testing"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
)

func TestParsePermission(t *testing.T) {
	tests := []struct {
		in       string
		resource string
		action   string
		wantErr  bool
	}{
		{"user:read", "user", "read", false},
		{" doc:write ", "doc", "write", false},
		{"report_v2:manage_all", "report_v2", "manage_all", false},
		{"user", "", "", true},
		{"user:", "", "", true},
		{":read", "", "", true},
		{"User:Read", "", "", true},
		{"a:b:c", "", "", true},
		{"user:" + strings.Repeat("x", 100), "", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			r, a, err := ParsePermission(tc.in)
			if tc.wantErr {
				if !autherr.IsValidation(err) {
					t.Fatalf("ParsePermission(%q) err = %v, want validation error", tc.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePermission(%q): %v", tc.in, err)
			}
			if r != tc.resource || a != tc.action {
				t.Errorf("ParsePermission(%q) = %q, %q", tc.in, r, a)
			}
		})
	}
}

func TestNewPermission(t *testing.T) {
	p, err := NewPermission("doc:write", "Write documents")
	if err != nil {
		t.Fatalf("NewPermission: %v", err)
	}
	if p.Name != "doc:write" || p.Resource != "doc" || p.Action != "write" || !p.IsActive {
		t.Errorf("NewPermission = %+v", p)
	}
	if _, err := NewPermission("doc:write", strings.Repeat("d", 201)); !autherr.IsValidation(err) {
		t.Errorf("long description err = %v, want validation error", err)
	}
}

func TestValidateRoleName(t *testing.T) {
	for _, ok := range []string{"editor", "super_admin", "ops2"} {
		if err := ValidateRoleName(ok); err != nil {
			t.Errorf("ValidateRoleName(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "a", "Editor", "2ops", "has space", strings.Repeat("r", 51)} {
		if err := ValidateRoleName(bad); !autherr.IsValidation(err) {
			t.Errorf("ValidateRoleName(%q) = %v, want validation error", bad, err)
		}
	}
}

func TestCatalog(t *testing.T) {
	all := AllPermissions()
	if len(all) != 24 {
		t.Fatalf("len(AllPermissions()) = %d, want 24", len(all))
	}
	seen := make(map[string]bool)
	for _, p := range all {
		if seen[p.Name] {
			t.Errorf("duplicate permission %q", p.Name)
		}
		seen[p.Name] = true
		if p.Resource+":"+p.Action != p.Name || !p.IsActive {
			t.Errorf("catalogue entry %+v", p)
		}
	}
	all[0].Name = "mutated"
	if AllPermissions()[0].Name == "mutated" {
		t.Error("AllPermissions must return a copy")
	}
}

func TestSeedRoles_ReferenceCatalog(t *testing.T) {
	known := make(map[string]bool)
	for _, n := range AllPermissionNames() {
		known[n] = true
	}
	names := make(map[string]bool)
	for _, r := range SeedRoles() {
		if err := ValidateRoleName(r.Name); err != nil {
			t.Errorf("seed role %q: %v", r.Name, err)
		}
		names[r.Name] = true
		for _, p := range r.Permissions {
			if !known[p] {
				t.Errorf("seed role %q references unknown permission %q", r.Name, p)
			}
		}
	}
	for _, want := range []string{RoleSuperAdmin, RoleAdmin, DefaultRole, RoleGuest} {
		if !names[want] {
			t.Errorf("seed roles missing %q", want)
		}
	}
	if got := len(SeedRoles()[0].Permissions); got != len(catalog) {
		t.Errorf("super_admin has %d permissions, want %d", got, len(catalog))
	}
}
