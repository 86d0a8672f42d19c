package notification

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("notification not found")
	ErrTemplateNotFound  = errors.New("template not found")
	ErrChannelDisabled   = errors.New("channel disabled for user")
	ErrNotCancellable    = errors.New("notification is no longer pending")
	ErrInvalidTransition = errors.New("status transition not allowed")
)

// ValidationError is returned for malformed requests. Nothing is persisted.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func newValidationError(problems ...string) *ValidationError {
	return &ValidationError{Problems: problems}
}

// TemplateError is returned when a referenced template is unusable or cannot be rendered.
type TemplateError struct {
	TemplateID string
	Reason     string
	Err        error
}

func (e *TemplateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("template %s: %s: %v", e.TemplateID, e.Reason, e.Err)
	}
	return fmt.Sprintf("template %s: %s", e.TemplateID, e.Reason)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// PersistenceError wraps a repository failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: persistence failure: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
