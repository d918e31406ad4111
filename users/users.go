package users

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// AccessLevel is the platform-wide authorization level of a principal.
type AccessLevel string

const (
	AccessNone  AccessLevel = "NONE"  // No elevated access
	AccessAdmin AccessLevel = "ADMIN" // Platform administrator, cross-tenant
)

// Profile is the authenticated principal as the console sees it (GET /users/me).
type Profile struct {
	ID             string      `json:"id"`
	Email          string      `json:"email"`
	Name           string      `json:"name,omitempty"`
	PlatformAccess AccessLevel `json:"platformAccess"`
}

// IsPlatformAdmin reports whether the profile carries the elevated access level.
func (p *Profile) IsPlatformAdmin() bool {
	return p != nil && p.PlatformAccess == AccessAdmin
}

// RoleType represents a user role either at system or tenant level
type RoleType string

const (
	// System-level roles
	RoleSuperAdmin RoleType = "super_admin" // Can manage all tenants and impersonate within them

	// Tenant-level roles
	RoleTenantAdmin RoleType = "tenant_admin" // Can manage members, groups and products within a tenant
	RoleTenantUser  RoleType = "tenant_user"  // Regular user within a tenant
)

// TenantMembership represents a user's membership and roles within a specific tenant
type TenantMembership struct {
	TenantID string     `json:"tenant_id"`
	Roles    []RoleType `json:"roles"`
	JoinedAt time.Time  `json:"joined_at"`
}

// User is the identity backend's record of a principal.
type User struct {
	ID           string `json:"id,omitempty"`
	Email        string `json:"email,omitempty"`
	PasswordHash string `json:"-"` // never serialize
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`

	SystemRoles []RoleType         `json:"system_roles,omitempty"` // System-wide roles (super_admin)
	Tenants     []TenantMembership `json:"tenants,omitempty"`      // Per-tenant roles and membership

	Blocked   bool      `json:"blocked,omitempty"`
	LastLogin time.Time `json:"last_login,omitempty"`
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// HasTenant reports whether the user belongs to tenantID. Super admins belong
// to every tenant and an empty tenantID means "no tenant scoping".
func (u *User) HasTenant(tenantID string) bool {
	if tenantID == "" || u.IsSuperAdmin() {
		return true
	}
	for _, t := range u.Tenants {
		if tenantID == t.TenantID {
			return true
		}
	}
	return false
}

// IsSuperAdmin returns true if the user has super admin privileges
func (u *User) IsSuperAdmin() bool {
	for _, role := range u.SystemRoles {
		if role == RoleSuperAdmin {
			return true
		}
	}
	return false
}

// GetRolesForTenant returns the user's roles within a specific tenant
func (u *User) GetRolesForTenant(tenantID string) []RoleType {
	for i := range u.Tenants {
		if u.Tenants[i].TenantID == tenantID {
			return u.Tenants[i].Roles
		}
	}
	return nil
}

// CombinedRoles returns system roles followed by the roles held in tenantID.
func (u *User) CombinedRoles(tenantID string) []string {
	roles := make([]string, 0)
	for _, role := range u.SystemRoles {
		roles = append(roles, string(role))
	}
	if tenantID != "" {
		for _, role := range u.GetRolesForTenant(tenantID) {
			roles = append(roles, string(role))
		}
	}
	return roles
}

// Profile projects the record onto the shape served by GET /users/me.
func (u *User) Profile() *Profile {
	access := AccessNone
	if u.IsSuperAdmin() {
		access = AccessAdmin
	}
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	return &Profile{
		ID:             u.ID,
		Email:          u.Email,
		Name:           name,
		PlatformAccess: access,
	}
}
