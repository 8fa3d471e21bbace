package linkauth

import (
	"errors"
	"fmt"
)

// Store level sentinels
var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrDuplicateAccount = errors.New("account with this identity already exists")
	ErrUnknownProvider  = errors.New("unknown provider")
)

// ErrorKind classifies user facing failures
type ErrorKind string

const (
	KindConflict   ErrorKind = "conflict"    // email or provider id already taken
	KindNotFound   ErrorKind = "not_found"   // login with an unknown email
	KindAuthFailed ErrorKind = "auth_failed" // wrong password
	KindInvalid    ErrorKind = "invalid"     // malformed form input
)

// Error codes
const (
	ErrCodeEmailTaken    = "email_taken"
	ErrCodeProviderTaken = "provider_taken"
	ErrCodeNoUser        = "no_user"
	ErrCodeWrongPassword = "wrong_password"
	ErrCodeMissingField  = "missing_field"
	ErrCodeInvalidEmail  = "invalid_email"
	ErrCodeWeakPassword  = "weak_password"
)

// AuthError is a user correctable failure. Its Message is shown to the user as is.
type AuthError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Field   string
}

func NewAuthError(kind ErrorKind, code, message, field string) *AuthError {
	return &AuthError{Kind: kind, Code: code, Message: message, Field: field}
}

func (e *AuthError) Error() string {
	return e.Message
}

// StorageError wraps a failure of the storage collaborator. It is never retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// KindOf returns the kind of an AuthError anywhere in err's chain, or "" otherwise
func KindOf(err error) ErrorKind {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return ""
}

// IsStorageError reports whether err came from the storage collaborator
func IsStorageError(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr)
}

var (
	errEmailTaken    = NewAuthError(KindConflict, ErrCodeEmailTaken, "That email is already taken.", "email")
	errProviderTaken = NewAuthError(KindConflict, ErrCodeProviderTaken, "That account is already linked to another user.", "")
	errNoUser        = NewAuthError(KindNotFound, ErrCodeNoUser, "No user found.", "email")
	errWrongPassword = NewAuthError(KindAuthFailed, ErrCodeWrongPassword, "Oops! Wrong password.", "password")
	errLongPassword  = NewAuthError(KindInvalid, ErrCodeWeakPassword, "Password is too long.", "password")
)
