// Package common defines shared constants and sentinel errors used across
// the authentication core and its adapters. Callers should use errors.Is to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("not authenticated")

	// Lifecycle validation errors.
	ErrValidation       = errors.New("validation error")
	ErrEmailTaken       = errors.New("email taken")
	ErrEmailMissing     = errors.New("email missing")
	ErrEmailMismatch    = errors.New("email mismatch")
	ErrEmailInvalid     = errors.New("email invalid")
	ErrBadPassword      = errors.New("bad password")
	ErrPasswordMismatch = errors.New("password mismatch")

	// Login flow outcomes that are not an authenticated identity.
	ErrPasswordRequired = errors.New("password required")
	ErrLoginEmailSent   = errors.New("login email sent")

	// Key generation ran out of attempts; the key field is left empty.
	ErrKeyGenerationExhausted = errors.New("key generation exhausted")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

// FieldError reports which input field failed validation. It unwraps to the
// sentinel describing the failure kind.
type FieldError struct {
	Field string
	Err   error
}

// NewFieldError builds a FieldError for field wrapping err.
func NewFieldError(field string, err error) *FieldError {
	return &FieldError{Field: field, Err: err}
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
