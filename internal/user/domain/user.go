package domain

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
	MaxEmailLength    = 120

	DefaultPerPage = 20
	MaxPerPage     = 100
	// MaxPage bounds the page number so the row offset cannot overflow.
	MaxPage = 100000
)

// User is the credential-store entity. PasswordHash never leaves the service layer.
type User struct {
	ID                string
	Username          string
	Email             string
	PasswordHash      string
	IsActive          bool
	IsAdmin           bool
	PasswordChangedAt *time.Time
	LastLoginAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Normalize trims the username and lowercases the email.
func (u *User) Normalize() {
	u.Username = strings.TrimSpace(u.Username)
	u.Email = NormalizeEmail(u.Email)
}

// Validate validates the user for persistence. Returns the first validation failure.
func (u *User) Validate() error {
	if err := ValidateUsername(u.Username); err != nil {
		return err
	}
	if err := ValidateEmail(u.Email); err != nil {
		return err
	}
	if u.PasswordHash == "" {
		return autherr.Invalid("password", "is required")
	}
	return nil
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateUsername requires 3 to 20 characters without surrounding whitespace.
func ValidateUsername(username string) error {
	if username == "" {
		return autherr.Invalid("username", "is required")
	}
	if strings.TrimSpace(username) != username {
		return autherr.Invalid("username", "must not start or end with whitespace")
	}
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return autherr.Invalid("username", "must be between 3 and 20 characters")
	}
	return nil
}

// ValidateEmail requires a bare address (no display name) of at most 120 characters.
func ValidateEmail(email string) error {
	if email == "" {
		return autherr.Invalid("email", "is required")
	}
	if len(email) > MaxEmailLength {
		return autherr.Invalid("email", "must be at most 120 characters")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return autherr.Invalid("email", "is not a valid email address")
	}
	return nil
}

// ListFilter selects a page of users. Nil booleans do not filter.
type ListFilter struct {
	Page     int
	PerPage  int
	Query    string
	IsActive *bool
	IsAdmin  *bool
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
	f.Query = strings.TrimSpace(f.Query)
}

// Offset returns the row offset of the page.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}

// Page is one page of users plus the total number of matching rows.
type Page struct {
	Users []*User
	Total int
}

// Update carries the mutable user fields. Nil fields are left unchanged.
type Update struct {
	Username *string
	Email    *string
	IsActive *bool
	IsAdmin  *bool
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.Username == nil && u.Email == nil && u.IsActive == nil && u.IsAdmin == nil
}
