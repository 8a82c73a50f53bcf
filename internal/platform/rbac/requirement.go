package rbac

import (
	"context"
	"strings"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
)

// Checker answers permission and role questions for a user. resolver.Resolver satisfies it.
type Checker interface {
	HasPermission(ctx context.Context, userID, permission string) (bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	HasAnyPermission(ctx context.Context, userID string, permissions ...string) (bool, error)
	HasAllPermissions(ctx context.Context, userID string, permissions ...string) (bool, error)
}

type kind int

const (
	kindPermission kind = iota + 1
	kindRole
	kindAny
	kindAll
)

// Requirement is what a route demands of the caller: one permission, one role, or any/all of
// several permissions. The zero Requirement demands nothing.
type Requirement struct {
	kind  kind
	names []string
}

// Permission requires the named permission.
func Permission(name string) Requirement {
	return Requirement{kind: kindPermission, names: []string{name}}
}

// Role requires active membership of the named role.
func Role(name string) Requirement {
	return Requirement{kind: kindRole, names: []string{name}}
}

// AnyOf requires at least one of the permissions.
func AnyOf(names ...string) Requirement {
	return Requirement{kind: kindAny, names: append([]string(nil), names...)}
}

// AllOf requires every one of the permissions.
func AllOf(names ...string) Requirement {
	return Requirement{kind: kindAll, names: append([]string(nil), names...)}
}

// IsZero reports whether r demands nothing.
func (r Requirement) IsZero() bool {
	return r.kind == 0
}

// String names the requirement as shown in 403 responses.
func (r Requirement) String() string {
	joined := strings.Join(r.names, ", ")
	switch r.kind {
	case kindPermission:
		return joined
	case kindRole:
		return "role " + joined
	case kindAny:
		return "any of " + joined
	case kindAll:
		return "all of " + joined
	default:
		return ""
	}
}

// Check returns nil when userID satisfies r, an error wrapping autherr.ErrInsufficientPermission
// naming r when it does not, and the checker's error when the store fails.
func (r Requirement) Check(ctx context.Context, c Checker, userID string) error {
	if r.IsZero() {
		return nil
	}
	var (
		ok  bool
		err error
	)
	switch r.kind {
	case kindPermission:
		ok, err = c.HasPermission(ctx, userID, r.names[0])
	case kindRole:
		ok, err = c.HasRole(ctx, userID, r.names[0])
	case kindAny:
		ok, err = c.HasAnyPermission(ctx, userID, r.names...)
	case kindAll:
		ok, err = c.HasAllPermissions(ctx, userID, r.names...)
	}
	if err != nil {
		return err
	}
	if !ok {
		return autherr.PermissionDenied(r.String())
	}
	return nil
}
