package core

import (
	"errors"
	"fmt"
	"time"
)

// Generation failures never surface here: every agent degrades to a
// fallback value. These errors cover bad requests and misuse of a session.
var (
	ErrInvalidRequest     = errors.New("invalid run request")
	ErrInvalidTransition  = errors.New("invalid session transition")
	ErrSessionDone        = errors.New("session is complete")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

// ValidationError reports one rejected request field.
type ValidationError struct {
	Field     string
	Rule      string
	Message   string
	Value     any
	Timestamp time.Time
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap lets errors.Is match ErrInvalidRequest.
func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// NewValidationError creates a new ValidationError with timestamp
func NewValidationError(field, rule, message string, value any) *ValidationError {
	return &ValidationError{
		Field:     field,
		Rule:      rule,
		Message:   message,
		Value:     value,
		Timestamp: time.Now(),
	}
}

// TransitionError is returned when a session operation is not allowed in
// the session's current state.
type TransitionError struct {
	Op      string
	From    State
	Chapter int
	Reason  string
	Err     error
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s not allowed in state %s (chapter %d)", e.Op, e.From, e.Chapter)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return e.Err }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// IsTransitionError reports whether err is a rejected session operation.
func IsTransitionError(err error) bool {
	var transitionErr *TransitionError
	return errors.As(err, &transitionErr)
}
