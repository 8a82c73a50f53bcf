// Package handler exposes the audit trail over HTTP.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/swpuclaylee/APIFlask/internal/audit/domain"
	"github.com/swpuclaylee/APIFlask/internal/autherr"
	"github.com/swpuclaylee/APIFlask/internal/platform/httputil"
	"github.com/swpuclaylee/APIFlask/internal/platform/rbac"
	"github.com/swpuclaylee/APIFlask/internal/server/middleware"
)

// Reader reads audit logs. The audit repository satisfies it.
type Reader interface {
	GetByID(ctx context.Context, id string) (*domain.AuditLog, error)
	List(ctx context.Context, filter domain.ListFilter) (*domain.Page, error)
}

// Handlers serves /audit-logs.
type Handlers struct {
	logs Reader
	errs httputil.ErrorWriter
}

// NewHandlers returns the audit handlers.
func NewHandlers(logs Reader, errs httputil.ErrorWriter) *Handlers {
	return &Handlers{logs: logs, errs: errs}
}

// RegisterRoutes registers the audit routes behind system:log.
func (h *Handlers) RegisterRoutes(router *mux.Router, auth *middleware.Auth) {
	perm := rbac.Permission("system:log")
	router.Handle("/audit-logs", auth.Protect(perm, http.HandlerFunc(h.List))).Methods("GET")
	router.Handle("/audit-logs/{id}", auth.Protect(perm, http.HandlerFunc(h.Get))).Methods("GET")
}

// LogView is the JSON representation of an audit log entry.
type LogView struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"user_id"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

func logView(a *domain.AuditLog) LogView {
	v := LogView{
		ID:        a.ID,
		Action:    a.Action,
		Resource:  a.Resource,
		IP:        a.IP,
		Metadata:  a.Metadata,
		CreatedAt: a.CreatedAt,
	}
	if a.UserID != "" {
		uid := a.UserID
		v.UserID = &uid
	}
	return v
}

// List returns one page of audit logs, newest first, filtered by user_id, action and resource.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	var (
		f   domain.ListFilter
		err error
	)
	if f.Page, err = httputil.QueryInt(r, "page", 1); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	if f.PerPage, err = httputil.QueryInt(r, "per_page", domain.DefaultPerPage); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	q := r.URL.Query()
	f.UserID = strings.TrimSpace(q.Get("user_id"))
	f.Action = strings.TrimSpace(q.Get("action"))
	f.Resource = strings.TrimSpace(q.Get("resource"))
	f.Normalize()

	page, err := h.logs.List(r.Context(), f)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	out := make([]LogView, 0, len(page.Logs))
	for _, a := range page.Logs {
		out = append(out, logView(a))
	}
	_ = httputil.WritePaginated(w, out, httputil.NewPaginate(f.Page, f.PerPage, int64(page.Total)))
}

// Get returns one audit log entry.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	id := httputil.PathString(r, "id")
	a, err := h.logs.GetByID(r.Context(), id)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	if a == nil {
		h.errs.Write(w, r, fmt.Errorf("audit log %s: %w", id, autherr.ErrNotFound))
		return
	}
	_ = httputil.WriteSuccess(w, logView(a))
}
