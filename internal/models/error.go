package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrValidation     = errors.New("validation failed")
	ErrInternalServer = errors.New("internal server error")

	// Caller exceeded a request budget
	ErrTooManyRequests = errors.New("too many requests")

	// Store or cache did not answer within the configured deadline
	ErrServiceUnavailable = errors.New("service temporarily unavailable")

	// Authentication errors
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUnauthenticated       = errors.New("authentication required")
	ErrInvalidToken          = errors.New("invalid or expired token")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired reset token")

	// Account state errors
	ErrAccountInactive = errors.New("account is inactive")
	ErrAccountLocked   = errors.New("account is temporarily locked")
)

// ValidationError carries a client-facing reason and unwraps to ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
