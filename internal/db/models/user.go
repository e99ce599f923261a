// Package models - user.go defines the User account model with its profile fields,
// activation flags and soft-delete timestamp.
package models

import "time"

// User represents a registered account
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Name         string     `db:"name" json:"name"`
	AvatarURL    *string    `db:"avatar_url" json:"avatar_url"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	IsVerified   bool       `db:"is_verified" json:"is_verified"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time `db:"deleted_at" json:"-"`
}

// IsDeleted reports whether the account has been deactivated
func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}
