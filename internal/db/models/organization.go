// Package models - organization.go defines the Organization model, the top-level tenant unit
// of the directory, and the detail view that nests its departments.
package models

import "time"

// Organization represents a company, hospital or public institution
type Organization struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// OrganizationWithDepartments is an organization with its departments eagerly loaded
type OrganizationWithDepartments struct {
	Organization
	Departments []*Department `json:"departments"`
}
