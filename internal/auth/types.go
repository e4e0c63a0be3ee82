package auth

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Role is the fixed authorisation category of a user.
type Role string

const (
	RoleStudent  Role = "STUDENT"
	RoleLecturer Role = "LECTURER"
	RoleAdmin    Role = "ADMIN"
)

// ValidRoles lists every role a user account may hold.
var ValidRoles = []Role{RoleStudent, RoleLecturer, RoleAdmin}

// IsValidRole reports whether r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User is a stored account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialised
	Role         Role      `json:"role"`
	FirstName    string    `json:"firstName,omitempty"`
	LastName     string    `json:"lastName,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NormaliseEmail trims and lower-cases an address so lookups and the
// UNIQUE constraint treat case variants as one account.
func NormaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateEmail checks the address is a bare addr-spec.
func validateEmail(email string) error {
	if email == "" {
		return ClientErrorf(ErrInvalidInput, "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ClientErrorf(ErrInvalidInput, "email must be a valid address")
	}
	return nil
}

// Error classes. Concrete errors wrap exactly one of these so callers can
// map them with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrMisconfigured   = errors.New("auth misconfigured")
)

// Sentinel errors for auth operations.
var (
	ErrMissingToken       = fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	ErrTokenInvalid       = fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	ErrTokenExpired       = fmt.Errorf("%w: token has expired", ErrUnauthenticated)
	ErrEmailExists        = ClientErrorf(ErrConflict, "email already registered")
	ErrUserNotFound       = ClientErrorf(ErrNotFound, "User not found")
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrNotFound)
	ErrPasswordTooLong    = ClientErrorf(ErrInvalidInput, "password exceeds 72 bytes")
	ErrNoIdentity         = fmt.Errorf("%w: no authenticated identity", ErrForbidden)
)

// ClientError is an error whose Message may be returned to the caller as is.
// It unwraps to Class, so errors.Is still matches the error class.
type ClientError struct {
	Class   error
	Message string
}

// ClientErrorf creates a ClientError of class with a formatted message.
func ClientErrorf(class error, format string, args ...any) *ClientError {
	return &ClientError{Class: class, Message: fmt.Sprintf(format, args...)}
}

func (e *ClientError) Error() string {
	return e.Class.Error() + ": " + e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Class
}
