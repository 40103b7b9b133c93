package config

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRequiredField indicates a required option is missing
	ErrMissingRequiredField = errors.New("missing required option")

	// ErrInvalidValue indicates an option has an invalid value
	ErrInvalidValue = errors.New("invalid option value")
)

// ValidationError wraps configuration validation errors with context
type ValidationError struct {
	Component string // Subsystem being validated (server, workflow, approval, llm)
	Option    string // Environment variable name
	Err       error  // Underlying error
}

// Error returns formatted error message
func (e *ValidationError) Error() string {
	if e.Option != "" {
		return fmt.Sprintf("%s: option %s: %v", e.Component, e.Option, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Component, e.Err)
}

// Unwrap returns the underlying error
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error
func NewValidationError(component, option string, err error) *ValidationError {
	return &ValidationError{
		Component: component,
		Option:    option,
		Err:       err,
	}
}
