package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/swpuclaylee/APIFlask/internal/db"
	"github.com/swpuclaylee/APIFlask/internal/rbac/domain"
)

const (
	roleColumns       = `id, name, description, is_active, created_at, updated_at`
	permissionColumns = `id, name, resource, action, description, is_active, created_at, updated_at`
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an RBAC repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Snapshot reads the user's active flag, role ids and the permissions of those roles inside one
// read-only repeatable read transaction, so concurrent grants and revokes are seen all or nothing.
func (r *PostgresRepository) Snapshot(ctx context.Context, userID string) (*domain.Snapshot, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, db.MapError("snapshot begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	snap := &domain.Snapshot{}
	err = tx.QueryRowContext(ctx, `select is_active from users where id = $1`, userID).Scan(&snap.UserActive)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, db.MapError("snapshot commit", tx.Commit())
	}
	if err != nil {
		return nil, db.MapError("snapshot user", err)
	}
	snap.UserFound = true

	rows, err := tx.QueryContext(ctx, `
		select r.id, r.name, r.is_active
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, db.MapError("snapshot roles", err)
	}
	index := make(map[string]int)
	for rows.Next() {
		var g domain.RoleGrant
		if err := rows.Scan(&g.ID, &g.Name, &g.Active); err != nil {
			rows.Close()
			return nil, db.MapError("snapshot roles", err)
		}
		index[g.ID] = len(snap.Roles)
		snap.Roles = append(snap.Roles, g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, db.MapError("snapshot roles", err)
	}
	rows.Close()

	if len(snap.Roles) > 0 {
		placeholders := make([]string, len(snap.Roles))
		args := make([]any, len(snap.Roles))
		for i, g := range snap.Roles {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = g.ID
		}
		prow, err := tx.QueryContext(ctx, `
			select rp.role_id, p.name, p.is_active
			from role_permissions rp
			join permissions p on p.id = rp.permission_id
			where rp.role_id in (`+strings.Join(placeholders, ", ")+`)
			order by p.name
		`, args...)
		if err != nil {
			return nil, db.MapError("snapshot permissions", err)
		}
		defer prow.Close()
		for prow.Next() {
			var (
				roleID string
				pg     domain.PermissionGrant
			)
			if err := prow.Scan(&roleID, &pg.Name, &pg.Active); err != nil {
				return nil, db.MapError("snapshot permissions", err)
			}
			if i, ok := index[roleID]; ok {
				snap.Roles[i].Permissions = append(snap.Roles[i].Permissions, pg)
			}
		}
		if err := prow.Err(); err != nil {
			return nil, db.MapError("snapshot permissions", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, db.MapError("snapshot commit", err)
	}
	return snap, nil
}

// UserHasPermission is a single EXISTS probe over active user, role and permission rows.
func (r *PostgresRepository) UserHasPermission(ctx context.Context, userID, permission string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		select exists (
			select 1
			from users u
			join user_roles ur on ur.user_id = u.id
			join roles r on r.id = ur.role_id and r.is_active
			join role_permissions rp on rp.role_id = r.id
			join permissions p on p.id = rp.permission_id and p.is_active
			where u.id = $1 and u.is_active and p.name = $2
		)
	`, userID, permission).Scan(&ok)
	if err != nil {
		return false, db.MapError("probe permission", err)
	}
	return ok, nil
}

// CreateRole inserts the role. The role must have ID and timestamps set.
func (r *PostgresRepository) CreateRole(ctx context.Context, role *domain.Role) error {
	_, err := r.db.ExecContext(ctx, `
		insert into roles (id, name, description, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, role.ID, role.Name, role.Description, role.IsActive, role.CreatedAt, role.UpdatedAt)
	return db.MapError("create role", err)
}

// GetRole returns the role for id, or nil if not found.
func (r *PostgresRepository) GetRole(ctx context.Context, id string) (*domain.Role, error) {
	return r.getRole(ctx, "get role", `select `+roleColumns+` from roles where id = $1`, id)
}

// RoleByName returns the role with the given name regardless of its active flag, or nil.
func (r *PostgresRepository) RoleByName(ctx context.Context, name string) (*domain.Role, error) {
	return r.getRole(ctx, "get role by name", `select `+roleColumns+` from roles where name = $1`, name)
}

func (r *PostgresRepository) getRole(ctx context.Context, op, query string, arg any) (*domain.Role, error) {
	role, err := scanRole(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, db.MapError(op, err)
	}
	return role, nil
}

// ListRoles returns roles ordered by name.
func (r *PostgresRepository) ListRoles(ctx context.Context, activeOnly bool) ([]*domain.Role, error) {
	query := `select ` + roleColumns + ` from roles`
	if activeOnly {
		query += ` where is_active`
	}
	rows, err := r.db.QueryContext(ctx, query+` order by name`)
	if err != nil {
		return nil, db.MapError("list roles", err)
	}
	defer rows.Close()
	return collectRoles(rows, "list roles")
}

// UpdateRole writes name, description and the active flag.
func (r *PostgresRepository) UpdateRole(ctx context.Context, role *domain.Role) error {
	_, err := r.db.ExecContext(ctx, `
		update roles
		set name = $2, description = $3, is_active = $4, updated_at = $5
		where id = $1
	`, role.ID, role.Name, role.Description, role.IsActive, role.UpdatedAt)
	return db.MapError("update role", err)
}

// RolePermissions returns every permission linked to the role, active or not, ordered by name.
func (r *PostgresRepository) RolePermissions(ctx context.Context, roleID string) ([]*domain.Permission, error) {
	rows, err := r.db.QueryContext(ctx, `
		select p.id, p.name, p.resource, p.action, p.description, p.is_active, p.created_at, p.updated_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.name
	`, roleID)
	if err != nil {
		return nil, db.MapError("role permissions", err)
	}
	defer rows.Close()
	return collectPermissions(rows, "role permissions")
}

// CreatePermission inserts the permission. The permission must have ID and timestamps set.
func (r *PostgresRepository) CreatePermission(ctx context.Context, p *domain.Permission) error {
	_, err := r.db.ExecContext(ctx, `
		insert into permissions (id, name, resource, action, description, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.Name, p.Resource, p.Action, p.Description, p.IsActive, p.CreatedAt, p.UpdatedAt)
	return db.MapError("create permission", err)
}

// PermissionByName returns the permission, or nil if not found.
func (r *PostgresRepository) PermissionByName(ctx context.Context, name string) (*domain.Permission, error) {
	p, err := scanPermission(r.db.QueryRowContext(ctx, `select `+permissionColumns+` from permissions where name = $1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, db.MapError("get permission", err)
	}
	return p, nil
}

// ListPermissions returns permissions ordered by resource, action.
func (r *PostgresRepository) ListPermissions(ctx context.Context, activeOnly bool) ([]*domain.Permission, error) {
	query := `select ` + permissionColumns + ` from permissions`
	if activeOnly {
		query += ` where is_active`
	}
	rows, err := r.db.QueryContext(ctx, query+` order by resource, action`)
	if err != nil {
		return nil, db.MapError("list permissions", err)
	}
	defer rows.Close()
	return collectPermissions(rows, "list permissions")
}

// SetPermissionActive flips is_active. It reports false when no permission has that name.
func (r *PostgresRepository) SetPermissionActive(ctx context.Context, name string, active bool, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `update permissions set is_active = $2, updated_at = $3 where name = $1`, name, active, at)
	if err != nil {
		return false, db.MapError("set permission active", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, db.MapError("set permission active", err)
	}
	return n > 0, nil
}

// AddRolePermission links the pair; an existing link is left as is.
func (r *PostgresRepository) AddRolePermission(ctx context.Context, roleID, permissionID string) error {
	_, err := r.db.ExecContext(ctx, `
		insert into role_permissions (role_id, permission_id)
		values ($1, $2)
		on conflict do nothing
	`, roleID, permissionID)
	return db.MapError("add role permission", err)
}

// RemoveRolePermission unlinks the pair; a missing link is not an error.
func (r *PostgresRepository) RemoveRolePermission(ctx context.Context, roleID, permissionID string) error {
	_, err := r.db.ExecContext(ctx, `delete from role_permissions where role_id = $1 and permission_id = $2`, roleID, permissionID)
	return db.MapError("remove role permission", err)
}

// ReplaceRolePermissions sets the role's permissions to exactly permissionIDs in one transaction.
func (r *PostgresRepository) ReplaceRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return db.MapError("replace role permissions", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return db.MapError("replace role permissions", err)
	}
	for _, pid := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			values ($1, $2)
			on conflict do nothing
		`, roleID, pid); err != nil {
			return db.MapError("replace role permissions", err)
		}
	}
	return db.MapError("replace role permissions", tx.Commit())
}

// AddUserRole links the pair; an existing link is left as is.
func (r *PostgresRepository) AddUserRole(ctx context.Context, userID, roleID string) error {
	_, err := r.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict do nothing
	`, userID, roleID)
	return db.MapError("add user role", err)
}

// RemoveUserRole unlinks the pair; a missing link is not an error.
func (r *PostgresRepository) RemoveUserRole(ctx context.Context, userID, roleID string) error {
	_, err := r.db.ExecContext(ctx, `delete from user_roles where user_id = $1 and role_id = $2`, userID, roleID)
	return db.MapError("remove user role", err)
}

// UserRoles returns every role held by the user, active or not, ordered by name.
func (r *PostgresRepository) UserRoles(ctx context.Context, userID string) ([]*domain.Role, error) {
	rows, err := r.db.QueryContext(ctx, `
		select r.id, r.name, r.description, r.is_active, r.created_at, r.updated_at
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, db.MapError("user roles", err)
	}
	defer rows.Close()
	return collectRoles(rows, "user roles")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (*domain.Role, error) {
	var role domain.Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}
	return &role, nil
}

func scanPermission(row rowScanner) (*domain.Permission, error) {
	var p domain.Permission
	if err := row.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func collectRoles(rows *sql.Rows, op string) ([]*domain.Role, error) {
	out := []*domain.Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, db.MapError(op, err)
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, db.MapError(op, err)
	}
	return out, nil
}

func collectPermissions(rows *sql.Rows, op string) ([]*domain.Permission, error) {
	out := []*domain.Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, db.MapError(op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, db.MapError(op, err)
	}
	return out, nil
}
