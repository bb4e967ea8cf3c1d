package model

import (
	"errors"
	"fmt"
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrTimeout    ErrorCode = "TIMEOUT"
	ErrCancelled  ErrorCode = "CANCELLED"
	ErrExhausted  ErrorCode = "SEARCH_SPACE_EXHAUSTED"
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
)

var (
	// ErrSearchSpaceExhausted is returned when the cursor cannot advance any
	// further, either because the configured limit was reached or because the
	// next block would overflow int64.
	ErrSearchSpaceExhausted = errors.New("search space exhausted")

	// ErrPoolClosed is returned when work is submitted to a pool that has been shut down.
	ErrPoolClosed = errors.New("worker pool closed")
)

// APIError is a structured error returned by the worksizing API and by config validation.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	msg := fmt.Sprintf("%s: %s:", e.Code, e.Message)
	for i, d := range e.Details {
		if i > 0 {
			msg += ";"
		}
		msg += " " + d.String()
	}
	return msg
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	if f.Field == "" {
		return f.Message
	}
	return f.Field + " " + f.Message
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// InvalidTransitionError is returned when a task state transition is invalid.
type InvalidTransitionError struct {
	TaskID string
	From   TaskState
	To     TaskState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid task state transition: %s → %s (task %s)", e.From, e.To, e.TaskID)
}
