package security

import (
	"unicode"
	"unicode/utf8"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
)

const (
	MinPasswordLength = 6
	MaxPasswordLength = 128
)

// ValidatePassword enforces the password policy: 6 to 128 characters with at least
// one letter and one digit. Violations are autherr.ValidationError on field "password".
func ValidatePassword(password string) error {
	return validatePasswordField("password", password)
}

// ValidateNewPassword is ValidatePassword reported on field "new_password".
func ValidateNewPassword(password string) error {
	return validatePasswordField("new_password", password)
}

func validatePasswordField(field, password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return autherr.Invalid(field, "must be at least 6 characters")
	}
	if n > MaxPasswordLength {
		return autherr.Invalid(field, "must be at most 128 characters")
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return autherr.Invalid(field, "must contain at least one letter and one digit")
	}
	return nil
}
