// Package repositories implements the data access layer (repository pattern) for accounts,
// organizations, memberships, invitations and the audit log.
// Each repository type encapsulates all database queries for a domain entity and runs them
// against a sqlx.ExtContext, so the same code serves a pooled connection or a transaction.
// Lookups return (nil, nil) when no row matches.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/collabspace/collab-api/internal/db/models"
)

const userColumns = `id, email, password_hash, name, avatar_url, is_active, is_verified, created_at, updated_at, deleted_at`

// UserRepository handles user database operations
type UserRepository struct {
	db sqlx.ExtContext
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db sqlx.ExtContext) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser creates a new user
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.UpdatedAt = user.CreatedAt

	query := `
		INSERT INTO users (id, email, password_hash, name, avatar_url, is_active, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.AvatarURL,
		user.IsActive,
		user.IsVerified,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return wrapWriteError("failed to create user", err)
	}
	return nil
}

// GetUserByID retrieves a live user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	if !validID(userID) {
		return nil, nil
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, userID)
}

// GetUserByEmail retrieves a live user by exact email
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 AND deleted_at IS NULL`, email)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	user := &models.User{}
	err := sqlx.GetContext(ctx, r.db, user, query, arg)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// SoftDeleteUser deactivates the account
func (r *UserRepository) SoftDeleteUser(ctx context.Context, userID string, at time.Time) error {
	query := `
		UPDATE users
		SET deleted_at = $2, is_active = FALSE, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`
	if _, err := r.db.ExecContext(ctx, query, userID, at); err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	return nil
}
