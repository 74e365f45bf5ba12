package models

import (
	"errors"
	"fmt"
)

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrInvalidCredentials     = errors.New("invalid username or password")
	ErrDuplicateUsername      = errors.New("username already exists")
	ErrForbidden              = errors.New("forbidden")
	ErrNotFound               = errors.New("not found")

	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrMissingField  = errors.New("missing required field")
)

// ValidationError ties an input error to the form field that caused it.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}
