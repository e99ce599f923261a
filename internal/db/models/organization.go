// Package models - organization.go defines the Organization tenant model with its unique
// slug, free-text description, typed settings and soft-delete timestamp.
package models

import "time"

// Organization represents a top-level tenant/workspace
type Organization struct {
	ID          string               `db:"id" json:"id"`
	Name        string               `db:"name" json:"name"`
	Slug        string               `db:"slug" json:"slug"`
	Description string               `db:"description" json:"description"`
	Settings    OrganizationSettings `db:"settings" json:"settings"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time            `db:"updated_at" json:"updated_at"`
	DeletedAt   *time.Time           `db:"deleted_at" json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the organization has been soft-deleted
func (o *Organization) IsDeleted() bool {
	return o.DeletedAt != nil
}

// OrganizationWithRole is an organization as seen by one of its members
type OrganizationWithRole struct {
	Organization
	Role     Role      `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}
