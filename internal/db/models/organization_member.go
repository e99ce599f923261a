// Package models - organization_member.go defines the user-to-organization membership model
// and the enriched view that joins in the member's profile for API responses.
package models

import "time"

// OrganizationMember represents a user's membership in an organization
type OrganizationMember struct {
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	Role           Role      `db:"role" json:"role"`
	JoinedAt       time.Time `db:"joined_at" json:"joined_at"`
}

// OrganizationMemberWithUser includes the member's profile for display
type OrganizationMemberWithUser struct {
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	Role           Role      `db:"role" json:"role"`
	JoinedAt       time.Time `db:"joined_at" json:"joined_at"`
	UserName       string    `db:"user_name" json:"user_name"`
	UserEmail      string    `db:"user_email" json:"user_email"`
	UserAvatarURL  *string   `db:"user_avatar_url" json:"user_avatar_url"`
}
