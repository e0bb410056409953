// Package errors provides error classification helpers for the cmd layer.
//
// These wrappers attach a coarse category to errors so commands can map
// failures onto foundry exit codes without inspecting provider internals.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category identifies the broad class of a CLI-level failure.
type Category string

const (
	// CategoryInput marks invalid or conflicting user input.
	CategoryInput Category = "input"

	// CategoryExternal marks failures of an external service or tool.
	CategoryExternal Category = "external"

	// CategoryInternal marks unexpected internal failures.
	CategoryInternal Category = "internal"
)

// ClassifiedError carries a category alongside the underlying error.
type ClassifiedError struct {
	Category Category
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// NewInputError creates an input-category error with no underlying cause.
func NewInputError(message string) error {
	return &ClassifiedError{Category: CategoryInput, Message: message}
}

// NewExternalServiceError creates an external-category error.
func NewExternalServiceError(message string) error {
	return &ClassifiedError{Category: CategoryExternal, Message: message}
}

// WrapInput wraps err as an input-category error.
func WrapInput(err error, message string) error {
	return &ClassifiedError{Category: CategoryInput, Message: message, Err: err}
}

// WrapExternal wraps err as an external-category error.
func WrapExternal(err error, message string) error {
	return &ClassifiedError{Category: CategoryExternal, Message: message, Err: err}
}

// WrapInternal wraps err as an internal-category error. The context is
// accepted for call-site symmetry with cancellation-aware wrappers; a
// cancelled context downgrades nothing, the category stays internal.
func WrapInternal(ctx context.Context, err error, message string) error {
	_ = ctx
	return &ClassifiedError{Category: CategoryInternal, Message: message, Err: err}
}

// CategoryOf returns the category of err, or CategoryInternal when err
// carries no classification.
func CategoryOf(err error) Category {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryInternal
}
