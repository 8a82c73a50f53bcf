package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/swpuclaylee/APIFlask/internal/db"
	"github.com/swpuclaylee/APIFlask/internal/user/domain"
)

// Unique constraint names from the users migration.
const (
	ConstraintUsername = "users_username_key"
	ConstraintEmail    = "users_email_key"
)

const userColumns = `id, username, email, password_hash, is_active, is_admin,
	password_changed_at, last_login_at, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, "get user", `select `+userColumns+` from users where id = $1`, id)
}

// GetByUsername returns the user with the given username, or nil if not found.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, "get user by username", `select `+userColumns+` from users where username = $1`, username)
}

// GetByEmail returns the user with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, "get user by email", `select `+userColumns+` from users where email = $1`, email)
}

func (r *PostgresRepository) getOne(ctx context.Context, op, query string, arg any) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, db.MapError(op, err)
	}
	return u, nil
}

// Create inserts the user. The user must have ID, timestamps and PasswordHash set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		insert into users (id, username, email, password_hash, is_active, is_admin, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.IsActive, u.IsAdmin, u.CreatedAt, u.UpdatedAt)
	return db.MapError("create user", err)
}

// Update writes the mutable profile fields. Updating a missing row is not an error.
func (r *PostgresRepository) Update(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		update users
		set username = $2, email = $3, is_active = $4, is_admin = $5, updated_at = $6
		where id = $1
	`, u.ID, u.Username, u.Email, u.IsActive, u.IsAdmin, u.UpdatedAt)
	return db.MapError("update user", err)
}

// UpdatePassword replaces the password hash and stamps password_changed_at.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		update users
		set password_hash = $2, password_changed_at = $3, updated_at = $3
		where id = $1
	`, id, passwordHash, changedAt)
	return db.MapError("update password", err)
}

// TouchLogin sets last_login_at.
func (r *PostgresRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `update users set last_login_at = $2 where id = $1`, id, at)
	return db.MapError("touch login", err)
}

// Delete removes the user row; role memberships cascade.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return false, db.MapError("delete user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, db.MapError("delete user", err)
	}
	return n > 0, nil
}

// List returns one page of users ordered by created_at, id. Query matches username or email
// case-insensitively.
func (r *PostgresRepository) List(ctx context.Context, filter domain.ListFilter) (*domain.Page, error) {
	filter.Normalize()

	var (
		where []string
		args  []any
		idx   = 1
	)
	if filter.Query != "" {
		where = append(where, fmt.Sprintf("(username ilike $%d or email ilike $%d)", idx, idx))
		args = append(args, "%"+escapeLike(filter.Query)+"%")
		idx++
	}
	if filter.IsActive != nil {
		where = append(where, fmt.Sprintf("is_active = $%d", idx))
		args = append(args, *filter.IsActive)
		idx++
	}
	if filter.IsAdmin != nil {
		where = append(where, fmt.Sprintf("is_admin = $%d", idx))
		args = append(args, *filter.IsAdmin)
		idx++
	}
	clause := ""
	if len(where) > 0 {
		clause = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `select count(*) from users`+clause, args...).Scan(&total); err != nil {
		return nil, db.MapError("count users", err)
	}

	query := fmt.Sprintf(`select %s from users%s order by created_at, id limit $%d offset $%d`,
		userColumns, clause, idx, idx+1)
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.PerPage, filter.Offset())...)
	if err != nil {
		return nil, db.MapError("list users", err)
	}
	defer rows.Close()

	page := &domain.Page{Total: total, Users: []*domain.User{}}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, db.MapError("list users", err)
		}
		page.Users = append(page.Users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, db.MapError("list users", err)
	}
	return page, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u                    domain.User
		changedAt, lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsAdmin,
		&changedAt, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if changedAt.Valid {
		t := changedAt.Time
		u.PasswordChangedAt = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
