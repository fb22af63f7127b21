package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Storage("upload object", cause)

	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "upload object: connection refused", err.Error())
}

func TestError_WrappedStillMatches(t *testing.T) {
	err := fmt.Errorf("create extraction: %w", NotFound("extraction not found"))

	assert.ErrorIs(t, err, ErrNotFound)
	var appErr *Error
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, "extraction not found", appErr.Message)
}

func TestTooLarge_IsValidation(t *testing.T) {
	err := TooLarge(10)

	assert.ErrorIs(t, err, ErrTooLarge)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "file exceeds limit (10 bytes)", err.Error())
}

func TestError_MessageFallbacks(t *testing.T) {
	assert.Equal(t, "parse error", (&Error{Kind: ErrParse}).Error())
	assert.Equal(t, "boom", (&Error{Kind: ErrInference, Cause: errors.New("boom")}).Error())
	assert.Equal(t, "unknown error", (&Error{}).Error())
}
