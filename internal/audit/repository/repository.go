package repository

import (
	"context"

	"github.com/swpuclaylee/APIFlask/internal/audit/domain"
)

// Repository defines persistence for audit logs. Logs are append-only.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.AuditLog, error)
	List(ctx context.Context, filter domain.ListFilter) (*domain.Page, error)
	Create(ctx context.Context, a *domain.AuditLog) error
}
