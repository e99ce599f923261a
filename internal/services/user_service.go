package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/collabspace/collab-api/internal/auth"
	"github.com/collabspace/collab-api/internal/db/models"
	"github.com/collabspace/collab-api/internal/validation"
)

// RegisterRequest is the input of UserService.Register
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserService implements account registration, login and deactivation
type UserService struct {
	stores     StoreProvider
	tx         TxRunner
	bcryptCost int
	now        func() time.Time
}

// NewUserService creates a UserService
func NewUserService(stores StoreProvider, tx TxRunner, bcryptCost int) *UserService {
	return &UserService{stores: stores, tx: tx, bcryptCost: bcryptCost, now: time.Now}
}

// Register creates an active account
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, newValidationError("name", "name is required")
	}
	if hasControlChars(name) {
		return nil, newValidationError("name", "name must not contain control characters")
	}
	email, err := validation.ParseEmail(req.Email)
	if err != nil {
		return nil, newValidationError("email", "invalid email address: %q", req.Email)
	}
	if len(req.Password) < auth.MinPasswordLength {
		return nil, newValidationError("password", "password must be at least %d characters", auth.MinPasswordLength)
	}

	existing, err := s.stores.Users().GetUserByEmail(ctx, email.String())
	if err != nil {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}
	if existing != nil {
		return nil, newConflictError("email", "an account with this email already exists")
	}

	hash, err := auth.HashPassword(req.Password, s.bcryptCost)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return nil, newValidationError("password", "%s", err.Error())
	}
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &models.User{
		Email:        email.String(),
		PasswordHash: hash,
		Name:         name,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.stores.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return nil, newConflictError("email", "an account with this email already exists")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Authenticate returns the active user matching the credentials. Every failure is
// reported as ErrInvalidCredentials so callers cannot probe which emails exist.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.stores.Users().GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Get returns a live user by id
func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.stores.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, newNotFoundError("user", userID)
	}
	return user, nil
}

// Deactivate soft-deletes the account. It fails while the user is the only admin of any
// organization, since that organization would be left without a usable admin.
func (s *UserService) Deactivate(ctx context.Context, userID string) error {
	err := s.tx.WithTx(ctx, func(st StoreProvider) error {
		if err := requireUser(ctx, st, userID); err != nil {
			return err
		}
		orgs, err := st.Organizations().ListOrganizationsForUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list organizations: %w", err)
		}
		for _, org := range orgs {
			if !org.Role.IsAdmin() {
				continue
			}
			others, err := st.Members().LockOtherAdmins(ctx, org.ID, userID)
			if err != nil {
				return fmt.Errorf("failed to count admins: %w", err)
			}
			if others < 1 {
				return newValidationError("", "you are the last admin of %s; assign another admin first", org.Name)
			}
		}
		if err := st.Users().SoftDeleteUser(ctx, userID, s.now().UTC()); err != nil {
			return fmt.Errorf("failed to deactivate user: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info("user deactivated", "user_id", userID)
	return nil
}
