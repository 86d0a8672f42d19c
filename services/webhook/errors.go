package webhook

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownProvider = errors.New("unknown payment provider")
	ErrNotConfigured   = errors.New("provider is not configured")
	ErrAmountMismatch  = errors.New("event amount does not match order")
)

// SignatureError means a callback could not be authenticated. Such callbacks
// are never processed.
type SignatureError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *SignatureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s signature rejected: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s signature rejected: %s", e.Provider, e.Reason)
}

func (e *SignatureError) Unwrap() error { return e.Err }

// PayloadError means an authenticated callback could not be understood.
type PayloadError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *PayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s payload invalid: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s payload invalid: %s", e.Provider, e.Reason)
}

func (e *PayloadError) Unwrap() error { return e.Err }
