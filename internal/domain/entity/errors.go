package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain layer operations.
var (
	// ErrNoSession indicates an operation that requires an active session
	// was invoked before Create succeeded
	ErrNoSession = errors.New("no active session")

	// ErrLinkRequired indicates the post text lacks the http(s) URL the
	// provider's post format mandates; this is a caller-input error and
	// is never retried
	ErrLinkRequired = errors.New("post text must contain at least one http(s) URL")

	// ErrCredentialsRevoked indicates the refresh token was revoked and
	// cleared; the operator must re-supply credentials
	ErrCredentialsRevoked = errors.New("credentials revoked")

	// ErrNotFound indicates a requested entity was not found
	ErrNotFound = errors.New("entity not found")
)

// ValidationError represents a validation error with detailed field information.
// It implements the error interface and provides context about which field failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}
