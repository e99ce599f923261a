// email.go provides the Email value object used for invitations and account registration.
// Syntax checking is delegated to go-playground/validator's email rule; comparison is literal.
package validation

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidEmail is returned when an address fails syntax validation
var ErrInvalidEmail = errors.New("invalid email address")

var validate = validator.New()

// Email is a syntactically valid email address
type Email string

// ParseEmail trims surrounding whitespace and validates the address.
// Case is preserved.
func ParseEmail(raw string) (Email, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalidEmail
	}
	if err := validate.Var(s, "email"); err != nil {
		return "", ErrInvalidEmail
	}
	return Email(s), nil
}

func (e Email) String() string {
	return string(e)
}
