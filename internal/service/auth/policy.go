package auth

import (
	"fmt"
	"unicode"

	"github.com/shopcore/authcore/internal/apperrors"
)

const (
	passwordMinLength = 8
	passwordMaxLength = 128
)

// ValidatePassword enforces the password policy: length bounds plus at
// least one letter and one digit
func ValidatePassword(password string) error {
	if len(password) < passwordMinLength {
		return fmt.Errorf("%w: password must be at least %d characters", apperrors.ErrValidation, passwordMinLength)
	}
	if len(password) > passwordMaxLength {
		return fmt.Errorf("%w: password cannot exceed %d characters", apperrors.ErrValidation, passwordMaxLength)
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasLetter {
		return fmt.Errorf("%w: password must contain at least one letter", apperrors.ErrValidation)
	}
	if !hasDigit {
		return fmt.Errorf("%w: password must contain at least one digit", apperrors.ErrValidation)
	}

	return nil
}
