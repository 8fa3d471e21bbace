package linkauth

import (
	"fmt"
	"regexp"
	"strings"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// CredentialsPolicy validates local email/password input before it reaches the Reconciler
type CredentialsPolicy struct {
	MinPasswordLength int

	// MaxPasswordLength is in bytes. Zero means no limit.
	MaxPasswordLength int
}

// DefaultCredentialsPolicy requires a well formed email and a password of
// 8 characters up to bcrypt's 72 byte input limit
func DefaultCredentialsPolicy() CredentialsPolicy {
	return CredentialsPolicy{MinPasswordLength: 8, MaxPasswordLength: MaxBcryptPasswordLength}
}

// Validate checks the form values and returns a KindInvalid error on failure
func (p CredentialsPolicy) Validate(email, password string) *AuthError {
	if email == "" {
		return NewAuthError(KindInvalid, ErrCodeMissingField, "Email is required.", "email")
	}
	if !emailRegex.MatchString(email) {
		return NewAuthError(KindInvalid, ErrCodeInvalidEmail, "Invalid email format.", "email")
	}
	if password == "" {
		return NewAuthError(KindInvalid, ErrCodeMissingField, "Password is required.", "password")
	}
	if len(password) < p.MinPasswordLength {
		return NewAuthError(KindInvalid, ErrCodeWeakPassword,
			fmt.Sprintf("Password must be at least %d characters.", p.MinPasswordLength), "password")
	}
	if p.MaxPasswordLength > 0 && len(password) > p.MaxPasswordLength {
		return NewAuthError(KindInvalid, ErrCodeWeakPassword,
			fmt.Sprintf("Password must be at most %d bytes.", p.MaxPasswordLength), "password")
	}
	return nil
}

// NormalizeEmail trims and lowercases an email so lookups are case insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
