package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/swpuclaylee/APIFlask/internal/audit/domain"
)

// MemoryRepository keeps audit logs in process. Used by tests and local runs without Postgres.
type MemoryRepository struct {
	mu   sync.Mutex
	logs []*domain.AuditLog
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.logs) - 1; i >= 0; i-- {
		a := r.logs[i]
		if a.ID == id {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) List(ctx context.Context, filter domain.ListFilter) (*domain.Page, error) {
	filter.Normalize()
	r.mu.Lock()
	var matched []*domain.AuditLog
	for i := len(r.logs) - 1; i >= 0; i-- {
		a := r.logs[i]
		if (filter.UserID == "" || a.UserID == filter.UserID) &&
			(filter.Action == "" || a.Action == filter.Action) &&
			(filter.Resource == "" || a.Resource == filter.Resource) {
			c := *a
			matched = append(matched, &c)
		}
	}
	r.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	page := &domain.Page{Total: len(matched), Logs: []*domain.AuditLog{}}
	start := filter.Offset()
	if start >= len(matched) {
		return page, nil
	}
	end := start + filter.PerPage
	if end > len(matched) {
		end = len(matched)
	}
	page.Logs = append(page.Logs, matched[start:end]...)
	return page, nil
}

func (r *MemoryRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *a
	r.logs = append(r.logs, &c)
	return nil
}
