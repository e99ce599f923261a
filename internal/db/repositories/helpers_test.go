package repositories

import (
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

var errDB = errors.New("db error")

const (
	orgID  = "7f0c1a52-3a4e-4b8e-9f55-2d6f1c3b9a01"
	userID = "1b9e4f7a-8c2d-4e6f-a0b1-c2d3e4f5a6b7"
	invID  = "c5d6e7f8-1a2b-4c3d-9e8f-0a1b2c3d4e5f"
)

// newMockDB returns a sqlx handle backed by sqlmock and fails the test on unmet expectations
func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return sqlx.NewDb(db, "sqlmock"), mock
}
