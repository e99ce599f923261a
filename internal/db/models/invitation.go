// Package models - invitation.go defines the Invitation model: a single-use, time-limited
// token offering one email address a role in one organization. Expiry is evaluated lazily
// against the caller-supplied clock; no background job is needed for correctness.
package models

import "time"

// InvitationStatus is the derived lifecycle state of an invitation
type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
	InvitationStatusExpired  InvitationStatus = "expired"
)

// Invitation represents an outstanding or accepted organization invitation.
// Token is a bearer secret and is never serialized.
type Invitation struct {
	ID             string     `db:"id" json:"id"`
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	Email          string     `db:"email" json:"email"`
	Token          string     `db:"token" json:"-"`
	Role           Role       `db:"role" json:"role"`
	InvitedBy      string     `db:"invited_by" json:"invited_by"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt      time.Time  `db:"expires_at" json:"expires_at"`
	AcceptedAt     *time.Time `db:"accepted_at" json:"accepted_at"`
}

// IsExpired reports whether now is past the expiry timestamp
func (i *Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// IsAccepted reports whether the invitation has been used
func (i *Invitation) IsAccepted() bool {
	return i.AcceptedAt != nil
}

// Status returns the derived state. Accepted takes precedence over expired.
func (i *Invitation) Status(now time.Time) InvitationStatus {
	switch {
	case i.IsAccepted():
		return InvitationStatusAccepted
	case i.IsExpired(now):
		return InvitationStatusExpired
	default:
		return InvitationStatusPending
	}
}

// InvitationFilter selects invitations for listing and counting
type InvitationFilter struct {
	OrganizationID string
	// PendingOnly restricts results to invitations neither accepted nor expired at Now
	PendingOnly bool
	Now         time.Time
	Limit       int
	Offset      int
}
