// Package resolver answers permission and role questions over the user → role → permission graph.
// It holds no state; every call reads one snapshot from the graph store.
package resolver

import (
	"context"
	"sort"
	"time"

	"github.com/swpuclaylee/APIFlask/internal/db"
	"github.com/swpuclaylee/APIFlask/internal/rbac/domain"
	"github.com/swpuclaylee/APIFlask/internal/rbac/repository"
)

// Resolver computes effective permissions. An unknown or inactive user has none; that is not an error.
type Resolver struct {
	graph   repository.GraphReader
	prober  repository.PermissionProber
	timeout time.Duration
}

// NewResolver returns a Resolver over graph. When graph also implements PermissionProber, single
// permission checks use it instead of loading the snapshot. timeout bounds each call (0 = none).
func NewResolver(graph repository.GraphReader, timeout time.Duration) *Resolver {
	r := &Resolver{graph: graph, timeout: timeout}
	if p, ok := graph.(repository.PermissionProber); ok {
		r.prober = p
	}
	return r
}

// EffectivePermissions returns the sorted, deduplicated names of all active permissions reachable
// through the user's active roles.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	snap, err := r.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	walk(snap, func(name string) bool {
		set[name] = struct{}{}
		return false
	})
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// HasPermission reports whether the user holds permission through an active role.
func (r *Resolver) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	if r.prober != nil {
		ctx, cancel := db.Bounded(ctx, r.timeout)
		defer cancel()
		return r.prober.UserHasPermission(ctx, userID, permission)
	}
	return r.HasAnyPermission(ctx, userID, permission)
}

// HasAnyPermission reports whether the user holds at least one of permissions. No names means false.
func (r *Resolver) HasAnyPermission(ctx context.Context, userID string, permissions ...string) (bool, error) {
	if len(permissions) == 0 {
		return false, nil
	}
	snap, err := r.snapshot(ctx, userID)
	if err != nil {
		return false, err
	}
	want := toSet(permissions)
	found := false
	walk(snap, func(name string) bool {
		_, found = want[name]
		return found
	})
	return found, nil
}

// HasAllPermissions reports whether the user holds every one of permissions. No names means true.
func (r *Resolver) HasAllPermissions(ctx context.Context, userID string, permissions ...string) (bool, error) {
	if len(permissions) == 0 {
		return true, nil
	}
	snap, err := r.snapshot(ctx, userID)
	if err != nil {
		return false, err
	}
	missing := toSet(permissions)
	walk(snap, func(name string) bool {
		delete(missing, name)
		return len(missing) == 0
	})
	return len(missing) == 0, nil
}

// HasRole reports whether the user is an active member of the named active role.
func (r *Resolver) HasRole(ctx context.Context, userID, role string) (bool, error) {
	names, err := r.Roles(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == role {
			return true, nil
		}
	}
	return false, nil
}

// Roles returns the names of the user's active roles, sorted. An inactive user has none.
func (r *Resolver) Roles(ctx context.Context, userID string) ([]string, error) {
	snap, err := r.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := []string{}
	if !snap.UserActive {
		return out, nil
	}
	for _, g := range snap.Roles {
		if g.Active {
			out = append(out, g.Name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *Resolver) snapshot(ctx context.Context, userID string) (*domain.Snapshot, error) {
	ctx, cancel := db.Bounded(ctx, r.timeout)
	defer cancel()
	return r.graph.Snapshot(ctx, userID)
}

// walk calls visit for each active permission reachable in snap until visit returns true.
func walk(snap *domain.Snapshot, visit func(name string) bool) {
	if snap == nil || !snap.UserFound || !snap.UserActive {
		return
	}
	for _, g := range snap.Roles {
		if !g.Active {
			continue
		}
		for _, p := range g.Permissions {
			if p.Active && visit(p.Name) {
				return
			}
		}
	}
}

func toSet(names []string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}
