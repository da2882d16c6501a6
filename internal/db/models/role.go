// Package models - role.go defines the Role model used for RBAC tagging of users and the
// user_roles join row linking the two.
package models

// Role is a named RBAC label held by zero or more users
type Role struct {
	ID          int64   `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Description *string `db:"description" json:"description"`
}

// UserRole is one row of the user_roles join table
type UserRole struct {
	UserID int64 `db:"user_id" json:"user_id"`
	RoleID int64 `db:"role_id" json:"role_id"`
}
