package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
	"github.com/swpuclaylee/APIFlask/internal/user/domain"
)

// MemoryRepository is an in-process Repository with the same uniqueness rules as the users table.
// Used by tests and local runs without Postgres.
type MemoryRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]*domain.User)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneUser(r.users[id]), nil
}

func (r *MemoryRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkUnique(u, "create user"); err != nil {
		return err
	}
	r.users[u.ID] = cloneUser(u)
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.users[u.ID]
	if !ok {
		return nil
	}
	if err := r.checkUnique(u, "update user"); err != nil {
		return err
	}
	cur.Username = u.Username
	cur.Email = u.Email
	cur.IsActive = u.IsActive
	cur.IsAdmin = u.IsAdmin
	cur.UpdatedAt = u.UpdatedAt
	return nil
}

func (r *MemoryRepository) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.PasswordHash = passwordHash
		t := changedAt
		u.PasswordChangedAt = &t
		u.UpdatedAt = changedAt
	}
	return nil
}

func (r *MemoryRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		t := at
		u.LastLoginAt = &t
	}
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return false, nil
	}
	delete(r.users, id)
	return true, nil
}

func (r *MemoryRepository) List(ctx context.Context, filter domain.ListFilter) (*domain.Page, error) {
	filter.Normalize()
	q := strings.ToLower(filter.Query)

	r.mu.Lock()
	var matched []*domain.User
	for _, u := range r.users {
		if q != "" && !strings.Contains(strings.ToLower(u.Username), q) && !strings.Contains(strings.ToLower(u.Email), q) {
			continue
		}
		if filter.IsActive != nil && u.IsActive != *filter.IsActive {
			continue
		}
		if filter.IsAdmin != nil && u.IsAdmin != *filter.IsAdmin {
			continue
		}
		matched = append(matched, cloneUser(u))
	}
	r.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	page := &domain.Page{Total: len(matched), Users: []*domain.User{}}
	start := filter.Offset()
	if start < len(matched) {
		end := start + filter.PerPage
		if end > len(matched) {
			end = len(matched)
		}
		page.Users = matched[start:end]
	}
	return page, nil
}

// checkUnique must be called with r.mu held.
func (r *MemoryRepository) checkUnique(u *domain.User, op string) error {
	for id, other := range r.users {
		if id == u.ID {
			continue
		}
		if other.Username == u.Username {
			return &autherr.ConstraintError{Op: op, Constraint: ConstraintUsername}
		}
		if other.Email == u.Email {
			return &autherr.ConstraintError{Op: op, Constraint: ConstraintEmail}
		}
	}
	return nil
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
