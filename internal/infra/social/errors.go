package social

import (
	"errors"
	"fmt"
	"strings"

	"socialpub/internal/domain/entity"
)

// PlatformError represents a structured error payload returned by a social
// platform. It carries enough context (status code plus raw body) for the
// caller to log, and feeds the per-provider recoverable/fatal classification.
type PlatformError struct {
	Provider entity.ProviderKind

	// StatusCode is the HTTP status of the failed call
	StatusCode int

	// Code is the platform's numeric error code, 0 when the payload
	// carried none
	Code int

	// Kind is the platform's symbolic error kind (AT-protocol "error"
	// field, OAuth error string), empty when not applicable
	Kind string

	// Message is the human-readable platform message
	Message string

	// Body is the raw response body, kept for caller logging
	Body string
}

func (e *PlatformError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s API error (status %d, kind %s): %s", e.Provider, e.StatusCode, e.Kind, e.Message)
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s API error (status %d, code %d): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// AuthError represents a failed session create or refresh exchange,
// including non-JSON response bodies from the token endpoint.
type AuthError struct {
	Provider entity.ProviderKind
	Message  string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s authentication: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s authentication: %s", e.Provider, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// asPlatformError extracts a PlatformError from an error chain.
func asPlatformError(err error) (*PlatformError, bool) {
	var pErr *PlatformError
	if errors.As(err, &pErr) {
		return pErr, true
	}
	return nil, false
}

// isRevokedError reports whether the error carries the platform's "refresh
// token revoked" signal, after which no retry is meaningful without new
// credentials.
func isRevokedError(err error) bool {
	pErr, ok := asPlatformError(err)
	if !ok {
		return false
	}
	switch pErr.Kind {
	case "RevokedToken", "TokenRevoked", "invalid_grant":
		return true
	}
	return strings.Contains(strings.ToLower(pErr.Message), "revoked")
}

// errorCode extracts the numeric platform code from an error chain. When the
// payload carried no code, statusFallback selects whether the HTTP status is
// substituted for statuses >= 400.
func errorCode(err error, statusFallback bool) int {
	pErr, ok := asPlatformError(err)
	if !ok {
		return 0
	}
	if pErr.Code != 0 {
		return pErr.Code
	}
	if statusFallback && pErr.StatusCode >= 400 {
		return pErr.StatusCode
	}
	return 0
}

// errorMessage extracts the platform message from an error chain, falling
// back to the plain error text.
func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	if pErr, ok := asPlatformError(err); ok && pErr.Message != "" {
		return pErr.Message
	}
	return err.Error()
}
