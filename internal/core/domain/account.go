// Package domain contains the core entities and rules of the key panel.
package domain

import "time"

// Role is the privilege tier of a panel account.
type Role string

const (
	RoleSuperOwner Role = "superOwner"
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleReseller   Role = "reseller"
)

// SystemCreator is the createdBy value of accounts seeded by the panel itself.
const SystemCreator = "system"

// IsPrivileged reports whether keys issued under this role work through any endpoint.
func (r Role) IsPrivileged() bool {
	return r == RoleSuperOwner || r == RoleOwner
}

// Account is a reseller account. Accounts form a tree through CreatedBy.
type Account struct {
	Username     string    `json:"username"`
	Role         Role      `json:"role"`
	CreatedBy    string    `json:"created_by"`
	ServerStatus bool      `json:"server_status"`
	IsActive     bool      `json:"is_active"`
	ModName      *string   `json:"mod_name,omitempty"`
	Balance      int       `json:"balance"`
	CreatedAt    time.Time `json:"created_at"`
}

// Parent returns the username of the account that created this one, or ""
// when the account is a root (created by the system or by itself).
func (a *Account) Parent() string {
	if a.CreatedBy == "" || a.CreatedBy == SystemCreator || a.CreatedBy == a.Username {
		return ""
	}
	return a.CreatedBy
}
