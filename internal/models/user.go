package models

import "time"

// Web console roles, in ascending privilege order.
const (
	RoleViewer     = "viewer"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Password hash types stored in web_users.
const (
	HashTypePBKDF2 = "pbkdf2_sha256"
	HashTypeBcrypt = "bcrypt"
)

// ValidRole reports whether r is one of the three fixed roles.
func ValidRole(r string) bool {
	switch r {
	case RoleViewer, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdminRole reports whether r can manage users.
func IsAdminRole(r string) bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// WebUser is an operations-console account. Usernames are stored lowercase.
type WebUser struct {
	ID               int64      `json:"id"`
	Username         string     `json:"username"`
	PasswordHash     string     `json:"-"`
	PasswordHashType string     `json:"-"`
	Role             string     `json:"role"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastLoginAt      *time.Time `json:"last_login_at"`
}

// WebUserUpdate carries the mutable account fields. Nil fields are left
// unchanged.
type WebUserUpdate struct {
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

// ImportedUser is one entry of a bulk user import. Hashes are accepted
// verbatim and upgraded to PBKDF2 on first successful login.
type ImportedUser struct {
	Username         string `json:"username"`
	PasswordHash     string `json:"password_hash"`
	PasswordHashType string `json:"password_hash_type"`
	Role             string `json:"role"`
	IsActive         bool   `json:"is_active"`
}
