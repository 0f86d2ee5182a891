package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without field",
			appErr:   &AppError{Message: "price check failed"},
			expected: "price check failed",
		},
		{
			name:     "with field",
			appErr:   &AppError{Message: "must be between 0 and 23", Field: "PRICE_CHECK_HOUR"},
			expected: "PRICE_CHECK_HOUR: must be between 0 and 23",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestConstructors(t *testing.T) {
	t.Parallel()

	dbErr := errors.New("connection refused")

	tests := []struct {
		name     string
		err      *AppError
		message  string
		status   int
		sentinel error
		client   bool
	}{
		{"not found", NotFound("product"), "product not found", http.StatusNotFound, ErrNotFound, true},
		{"validation", ValidationError("days", "must be positive"), "must be positive", http.StatusBadRequest, ErrValidation, true},
		{"conflict", Conflict("price check already in progress"), "price check already in progress", http.StatusConflict, ErrConflict, true},
		{"unavailable default", Unavailable(""), "service unavailable", http.StatusServiceUnavailable, ErrUnavailable, true},
		{"unavailable", Unavailable("shutting down"), "shutting down", http.StatusServiceUnavailable, ErrUnavailable, true},
		{"internal", Internal(dbErr), "an internal error occurred", http.StatusInternalServerError, dbErr, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.message, tt.err.Message)
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.client, tt.err.Client())
		})
	}
}

func TestAs(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("track product: %w", ValidationError("url", "no retailer supports this URL"))
	appErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "url", appErr.Field)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}

func TestStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"AppError", &AppError{StatusCode: http.StatusTeapot}, http.StatusTeapot},
		{"wrapped AppError", fmt.Errorf("handler: %w", NotFound("run")), http.StatusNotFound},
		{"ErrNotFound", ErrNotFound, http.StatusNotFound},
		{"ErrValidation", ErrValidation, http.StatusBadRequest},
		{"ErrConflict", ErrConflict, http.StatusConflict},
		{"ErrUnavailable", fmt.Errorf("trigger: %w", ErrUnavailable), http.StatusServiceUnavailable},
		{"unknown error", errors.New("unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, StatusCode(tt.err))
		})
	}
}
