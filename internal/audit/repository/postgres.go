package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/swpuclaylee/APIFlask/internal/audit/domain"
	"github.com/swpuclaylee/APIFlask/internal/db"
)

const auditColumns = `id, user_id, action, resource, ip, metadata, created_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the audit log for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	a, err := scanAuditLog(r.db.QueryRowContext(ctx, `select `+auditColumns+` from audit_logs where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, db.MapError("get audit log", err)
	}
	return a, nil
}

// List returns one page of audit logs, newest first.
func (r *PostgresRepository) List(ctx context.Context, filter domain.ListFilter) (*domain.Page, error) {
	filter.Normalize()

	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("user_id", filter.UserID)
	add("action", filter.Action)
	add("resource", filter.Resource)
	clause := ""
	if len(where) > 0 {
		clause = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `select count(*) from audit_logs`+clause, args...).Scan(&total); err != nil {
		return nil, db.MapError("count audit logs", err)
	}
	query := fmt.Sprintf(`select %s from audit_logs%s order by created_at desc, id limit $%d offset $%d`,
		auditColumns, clause, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.PerPage, filter.Offset())...)
	if err != nil {
		return nil, db.MapError("list audit logs", err)
	}
	defer rows.Close()

	page := &domain.Page{Total: total, Logs: []*domain.AuditLog{}}
	for rows.Next() {
		a, err := scanAuditLog(rows)
		if err != nil {
			return nil, db.MapError("list audit logs", err)
		}
		page.Logs = append(page.Logs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, db.MapError("list audit logs", err)
	}
	return page, nil
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	uid := sql.NullString{String: a.UserID, Valid: a.UserID != ""}
	_, err := r.db.ExecContext(ctx, `
		insert into audit_logs (id, user_id, action, resource, ip, metadata, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, uid, a.Action, a.Resource, a.IP, a.Metadata, a.CreatedAt)
	return db.MapError("create audit log", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditLog(row rowScanner) (*domain.AuditLog, error) {
	var (
		a   domain.AuditLog
		uid sql.NullString
	)
	if err := row.Scan(&a.ID, &uid, &a.Action, &a.Resource, &a.IP, &a.Metadata, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.UserID = uid.String
	return &a, nil
}
