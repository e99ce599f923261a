// Package models - audit_log.go defines the AuditLog model recording who changed what inside
// an organization, with the client IP and free-form metadata.
package models

import "time"

// AuditLog represents an audit log entry for an organization mutation
type AuditLog struct {
	ID             string         `db:"id" json:"id"`
	UserID         *string        `db:"user_id" json:"user_id"`
	OrganizationID *string        `db:"organization_id" json:"organization_id"`
	Action         string         `db:"action" json:"action"`               // "member.role_updated", "invitation.created"
	ResourceType   *string        `db:"resource_type" json:"resource_type"` // "organization", "member", "invitation"
	ResourceID     *string        `db:"resource_id" json:"resource_id"`
	Metadata       map[string]any `db:"-" json:"metadata,omitempty"`
	IPAddress      *string        `db:"ip_address" json:"ip_address"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}
