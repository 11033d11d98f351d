package nighterrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_Error(t *testing.T) {
	err := NewAPIError("telegram", 400, "message to delete not found")
	assert.Equal(t, "telegram API error (status 400): message to delete not found", err.Error())

	wrapped := &APIError{Service: "telegram", StatusCode: 502, Message: "gateway", Err: errors.New("eof")}
	assert.Contains(t, wrapped.Error(), "eof")
	assert.ErrorIs(t, wrapped, wrapped.Err)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewAPIError("telegram", 429, "flood")))
	assert.True(t, IsRetryable(NewAPIError("telegram", 503, "unavailable")))
	assert.False(t, IsRetryable(NewAPIError("telegram", 400, "bad request")))
	assert.False(t, IsRetryable(NewAPIError("telegram", 403, "kicked")))

	assert.True(t, IsRetryable(fmt.Errorf("query: %w", ErrStoreUnavailable)))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrNotFound))
	assert.True(t, IsNotFound(fmt.Errorf("chat 5: %w", ErrNotFound)))
	assert.False(t, IsNotFound(ErrAlreadyOpen))
	assert.False(t, IsNotFound(nil))
}

func TestAPIError_As(t *testing.T) {
	var apiErr *APIError
	err := fmt.Errorf("call failed: %w", NewAPIError("telegram", 500, "boom"))
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 500, apiErr.StatusCode)
}
