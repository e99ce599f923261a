package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/collabspace/collab-api/internal/services"
)

// pgUniqueViolation is the SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// wrapWriteError annotates err with op and maps unique violations to services.ErrDuplicateKey
func wrapWriteError(op string, err error) error {
	if IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, services.ErrDuplicateKey)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isNoRows reports whether a single-row lookup found nothing
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// validID reports whether id can be compared against a UUID column. Lookups treat any
// other string as a miss instead of sending it to PostgreSQL, which would reject the cast.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}
