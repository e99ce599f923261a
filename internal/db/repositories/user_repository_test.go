package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/collabspace/collab-api/internal/db/models"
	"github.com/collabspace/collab-api/internal/services"
)

var userCols = []string{"id", "email", "password_hash", "name", "avatar_url", "is_active", "is_verified", "created_at", "updated_at", "deleted_at"}

func sampleUserRow() *sqlmock.Rows {
	return sqlmock.NewRows(userCols).
		AddRow(userID, "alice@example.com", "$2a$04$hash", "Alice", nil, true, false, time.Now(), time.Now(), nil)
}

func newUserRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewUserRepository(db), mock
}

// ---------------------------------------------------------------------------
// CreateUser
// ---------------------------------------------------------------------------

func TestCreateUser_Success(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "alice@example.com", "hash", "Alice", nil, true, false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &models.User{Email: "alice@example.com", PasswordHash: "hash", Name: "Alice", IsActive: true}
	if err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !validID(u.ID) {
		t.Errorf("ID = %q, want a UUID", u.ID)
	}
	if u.CreatedAt.IsZero() || !u.UpdatedAt.Equal(u.CreatedAt) {
		t.Errorf("timestamps not set: created=%v updated=%v", u.CreatedAt, u.UpdatedAt)
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_live_key"})

	err := repo.CreateUser(context.Background(), &models.User{Email: "alice@example.com"})
	if !errors.Is(err, services.ErrDuplicateKey) {
		t.Errorf("err = %v, want ErrDuplicateKey", err)
	}
}

func TestCreateUser_DBError(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectExec("INSERT INTO users").WillReturnError(errDB)

	err := repo.CreateUser(context.Background(), &models.User{Email: "alice@example.com"})
	if !errors.Is(err, errDB) || errors.Is(err, services.ErrDuplicateKey) {
		t.Errorf("err = %v, want wrapped errDB", err)
	}
}

// ---------------------------------------------------------------------------
// GetUserByID / GetUserByEmail
// ---------------------------------------------------------------------------

func TestGetUserByID_Found(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT .* FROM users WHERE id = \\$1 AND deleted_at IS NULL").
		WithArgs(userID).
		WillReturnRows(sampleUserRow())

	u, err := repo.GetUserByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u == nil || u.Email != "alice@example.com" || u.PasswordHash != "$2a$04$hash" {
		t.Errorf("user = %+v", u)
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT .* FROM users WHERE id").
		WillReturnRows(sqlmock.NewRows(userCols))

	u, err := repo.GetUserByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u != nil {
		t.Error("expected nil user")
	}
}

func TestGetUserByID_MalformedIDSkipsQuery(t *testing.T) {
	repo, _ := newUserRepo(t)

	u, err := repo.GetUserByID(context.Background(), "not-a-uuid")
	if err != nil || u != nil {
		t.Errorf("GetUserByID(not-a-uuid) = %v, %v; want nil, nil", u, err)
	}
}

func TestGetUserByEmail_DBError(t *testing.T) {
	repo, mock := newUserRepo(t)
	mock.ExpectQuery("SELECT .* FROM users WHERE email").
		WithArgs("alice@example.com").
		WillReturnError(errDB)

	if _, err := repo.GetUserByEmail(context.Background(), "alice@example.com"); !errors.Is(err, errDB) {
		t.Errorf("err = %v, want errDB", err)
	}
}

// ---------------------------------------------------------------------------
// SoftDeleteUser
// ---------------------------------------------------------------------------

func TestSoftDeleteUser(t *testing.T) {
	repo, mock := newUserRepo(t)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE users\\s+SET deleted_at = \\$2, is_active = FALSE").
		WithArgs(userID, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SoftDeleteUser(context.Background(), userID, at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
