package domain

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
)

// Role groups permissions. A deactivated role keeps its rows and associations but grants nothing.
type Role struct {
	ID          string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is a resource:action grant. Only IsActive changes after creation.
type Permission struct {
	ID          string
	Name        string
	Resource    string
	Action      string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoleDetail is a role with the names of its active permissions.
type RoleDetail struct {
	Role
	Permissions []string
}

// PermissionGrant is one permission reachable from a role in a Snapshot.
type PermissionGrant struct {
	Name   string
	Active bool
}

// RoleGrant is one role held by the user in a Snapshot.
type RoleGrant struct {
	ID          string
	Name        string
	Active      bool
	Permissions []PermissionGrant
}

// Snapshot is the user's slice of the permission graph read at one point in time.
// Inactive rows are included with their flag; the resolver filters them.
type Snapshot struct {
	UserFound  bool
	UserActive bool
	Roles      []RoleGrant
}

const (
	MaxRoleNameLength    = 50
	MaxDescriptionLength = 200
	MaxPermissionLength  = 100
)

var (
	namePattern       = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	permissionPattern = regexp.MustCompile(`^([a-z][a-z0-9_]*):([a-z][a-z0-9_]*)$`)
)

// ValidateRoleName checks a role name: lower case letters, digits and underscores, 2 to 50 chars.
func ValidateRoleName(name string) error {
	if n := len(name); n < 2 || n > MaxRoleNameLength {
		return autherr.Invalid("name", "role name must be between 2 and 50 characters")
	}
	if !namePattern.MatchString(name) {
		return autherr.Invalid("name", "role name may contain only lower case letters, digits and underscores")
	}
	return nil
}

// ValidateDescription limits description length.
func ValidateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return autherr.Invalid("description", "description must be at most 200 characters")
	}
	return nil
}

// ParsePermission splits "resource:action" and validates both halves.
func ParsePermission(name string) (resource, action string, err error) {
	name = strings.TrimSpace(name)
	if len(name) > MaxPermissionLength {
		return "", "", autherr.Invalid("name", "permission name must be at most 100 characters")
	}
	m := permissionPattern.FindStringSubmatch(name)
	if m == nil {
		return "", "", autherr.Invalid("name", "permission name must have the form resource:action")
	}
	return m[1], m[2], nil
}

// NewPermission builds an active Permission from its name.
func NewPermission(name, description string) (*Permission, error) {
	resource, action, err := ParsePermission(name)
	if err != nil {
		return nil, err
	}
	if err := ValidateDescription(description); err != nil {
		return nil, err
	}
	return &Permission{
		Name:        resource + ":" + action,
		Resource:    resource,
		Action:      action,
		Description: description,
		IsActive:    true,
	}, nil
}
