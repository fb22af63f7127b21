// Package apperr defines the error kinds shared by the orchestrator, the
// worker pipeline and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kinds. Compare with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrStorage           = errors.New("storage error")
	ErrCache             = errors.New("cache error")
	ErrInference         = errors.New("inference error")
	ErrParse             = errors.New("parse error")
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrTooLarge is a validation failure with its own HTTP status.
	ErrTooLarge = fmt.Errorf("%w: file too large", ErrValidation)
)

// Error carries a kind, a human readable message and an optional cause.
// Error() renders only the message and cause so it can be stored as a
// failure reason verbatim.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Cause != nil:
		return e.Message + ": " + e.Cause.Error()
	case e.Message != "":
		return e.Message
	case e.Cause != nil:
		return e.Cause.Error()
	case e.Kind != nil:
		return e.Kind.Error()
	default:
		return "unknown error"
	}
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// New builds an Error of the given kind.
func New(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(message string) error {
	return New(ErrValidation, message, nil)
}

func TooLarge(limit int64) error {
	return New(ErrTooLarge, fmt.Sprintf("file exceeds limit (%d bytes)", limit), nil)
}

func NotFound(message string) error {
	return New(ErrNotFound, message, nil)
}

func Storage(message string, cause error) error {
	return New(ErrStorage, message, cause)
}

func Cache(message string, cause error) error {
	return New(ErrCache, message, cause)
}

func Inference(message string, cause error) error {
	return New(ErrInference, message, cause)
}

func Parse(message string, cause error) error {
	return New(ErrParse, message, cause)
}
