package domain

// Permission names known to the application.
const (
	PermUserCreate = "user:create"
	PermUserRead   = "user:read"
	PermUserUpdate = "user:update"
	PermUserDelete = "user:delete"

	PermRoleCreate = "role:create"
	PermRoleRead   = "role:read"
	PermRoleUpdate = "role:update"
	PermRoleDelete = "role:delete"

	PermPermissionCreate = "permission:create"
	PermPermissionRead   = "permission:read"
	PermPermissionUpdate = "permission:update"
	PermPermissionDelete = "permission:delete"

	PermOrderCreate = "order:create"
	PermOrderRead   = "order:read"
	PermOrderUpdate = "order:update"
	PermOrderDelete = "order:delete"

	PermProductCreate = "product:create"
	PermProductRead   = "product:read"
	PermProductUpdate = "product:update"
	PermProductDelete = "product:delete"

	PermReportRead   = "report:read"
	PermReportManage = "report:manage"

	PermSystemConfig = "system:config"
	PermSystemLog    = "system:log"
)

// Seeded role names.
const (
	RoleSuperAdmin      = "super_admin"
	RoleAdmin           = "admin"
	RoleUserManager     = "user_manager"
	RoleOrderManager    = "order_manager"
	RoleProductManager  = "product_manager"
	RoleCustomerService = "customer_service"
	RoleFinance         = "finance"
	RoleUser            = "user"
	RoleGuest           = "guest"

	// DefaultRole is granted to self-registered users when it exists.
	DefaultRole = RoleUser
)

var catalog = []Permission{
	{Name: PermUserCreate, Description: "Create users"},
	{Name: PermUserRead, Description: "View users"},
	{Name: PermUserUpdate, Description: "Update users"},
	{Name: PermUserDelete, Description: "Delete users"},

	{Name: PermRoleCreate, Description: "Create roles"},
	{Name: PermRoleRead, Description: "View roles"},
	{Name: PermRoleUpdate, Description: "Update roles"},
	{Name: PermRoleDelete, Description: "Delete roles"},

	{Name: PermPermissionCreate, Description: "Create permissions"},
	{Name: PermPermissionRead, Description: "View permissions"},
	{Name: PermPermissionUpdate, Description: "Update permissions"},
	{Name: PermPermissionDelete, Description: "Delete permissions"},

	{Name: PermOrderCreate, Description: "Create orders"},
	{Name: PermOrderRead, Description: "View orders"},
	{Name: PermOrderUpdate, Description: "Update orders"},
	{Name: PermOrderDelete, Description: "Delete orders"},

	{Name: PermProductCreate, Description: "Create products"},
	{Name: PermProductRead, Description: "View products"},
	{Name: PermProductUpdate, Description: "Update products"},
	{Name: PermProductDelete, Description: "Delete products"},

	{Name: PermReportRead, Description: "View reports"},
	{Name: PermReportManage, Description: "Manage reports"},

	{Name: PermSystemConfig, Description: "Change system configuration"},
	{Name: PermSystemLog, Description: "View system logs"},
}

// AllPermissions returns the permission catalogue with resource and action filled in.
// The returned slice is a copy.
func AllPermissions() []Permission {
	out := make([]Permission, len(catalog))
	for i, p := range catalog {
		p.Resource, p.Action, _ = ParsePermission(p.Name)
		p.IsActive = true
		out[i] = p
	}
	return out
}

// AllPermissionNames returns the names of every catalogue permission.
func AllPermissionNames() []string {
	out := make([]string, len(catalog))
	for i, p := range catalog {
		out[i] = p.Name
	}
	return out
}

// SeedRole is a role created by the seeder together with its initial permissions.
type SeedRole struct {
	Name        string
	Description string
	Permissions []string
}

// SeedRoles returns the roles the seeder creates when missing.
func SeedRoles() []SeedRole {
	return []SeedRole{
		{
			Name:        RoleSuperAdmin,
			Description: "Super administrator with every permission",
			Permissions: AllPermissionNames(),
		},
		{
			Name:        RoleAdmin,
			Description: "Administrator for users, roles and the system",
			Permissions: []string{
				PermUserCreate, PermUserRead, PermUserUpdate, PermUserDelete,
				PermRoleCreate, PermRoleRead, PermRoleUpdate, PermRoleDelete,
				PermPermissionRead,
				PermSystemConfig, PermSystemLog,
				PermReportRead, PermReportManage,
			},
		},
		{
			Name:        RoleUserManager,
			Description: "Manages user accounts",
			Permissions: []string{PermUserCreate, PermUserRead, PermUserUpdate, PermRoleRead, PermReportRead},
		},
		{
			Name:        RoleOrderManager,
			Description: "Manages orders",
			Permissions: []string{
				PermOrderCreate, PermOrderRead, PermOrderUpdate, PermOrderDelete,
				PermUserRead, PermProductRead, PermReportRead,
			},
		},
		{
			Name:        RoleProductManager,
			Description: "Manages the product catalogue",
			Permissions: []string{
				PermProductCreate, PermProductRead, PermProductUpdate, PermProductDelete,
				PermReportRead,
			},
		},
		{
			Name:        RoleCustomerService,
			Description: "Handles customer accounts and orders",
			Permissions: []string{PermUserRead, PermUserUpdate, PermOrderRead, PermOrderUpdate, PermProductRead},
		},
		{
			Name:        RoleFinance,
			Description: "Reads orders and financial reports",
			Permissions: []string{PermOrderRead, PermReportRead, PermUserRead},
		},
		{
			Name:        RoleUser,
			Description: "Regular user with basic read access",
			Permissions: []string{PermUserRead, PermProductRead, PermOrderRead},
		},
		{
			Name:        RoleGuest,
			Description: "Guest limited to public content",
			Permissions: []string{PermProductRead},
		},
	}
}
