// Package models - user.go defines the User model for employees, with their organization,
// optional department and the set of roles they hold.
package models

import "time"

// User represents an employee in the directory
type User struct {
	ID             int64     `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	FullName       *string   `db:"full_name" json:"full_name"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	OrganizationID int64     `db:"organization_id" json:"organization_id"`
	DepartmentID   *int64    `db:"department_id" json:"department_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
	Roles          []*Role   `db:"-" json:"roles"`
}

// HasRole returns true if the user holds the role with the given name
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// RoleNames returns the names of the roles held by the user in their loaded order
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}
