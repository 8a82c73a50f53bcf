package domain

import "time"

// Actions recorded for authentication events. Admin calls use the verb derived from the route.
const (
	ActionRegister       = "register"
	ActionLogin          = "login"
	ActionLoginFailure   = "login_failure"
	ActionLogout         = "logout"
	ActionPasswordChange = "password_change"
)

// ResourceAuth is the resource of authentication events.
const ResourceAuth = "auth"

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
	// MaxPage bounds the page number so the row offset cannot overflow.
	MaxPage = 100000
)

// AuditLog represents an audit event. UserID is empty for anonymous events such as a failed login.
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}

// ListFilter selects a page of audit logs, newest first. Empty strings do not filter.
type ListFilter struct {
	Page     int
	PerPage  int
	UserID   string
	Action   string
	Resource string
}

// Normalize clamps paging to 1 <= page <= MaxPage and 1 <= per_page <= 100 (default 20).
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
	if f.PerPage <= 0 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
}

// Offset returns the row offset of the page.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}

// Page is one page of audit logs plus the total number of matching rows.
type Page struct {
	Logs  []*AuditLog
	Total int
}
