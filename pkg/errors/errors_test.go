package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			appErr:   &AppError{Code: CodeNotFound, Message: "slot not found"},
			expected: "NOT_FOUND: slot not found",
		},
		{
			name: "with underlying error",
			appErr: &AppError{
				Code:    CodeInternal,
				Message: "failed to persist slot",
				Err:     errors.New("connection reset"),
			},
			expected: "INTERNAL_ERROR: failed to persist slot (caused by: connection reset)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"not found", NotFound("Slot"), CodeNotFound, http.StatusNotFound},
		{"validation", Validation("bad rule", nil), CodeValidation, http.StatusUnprocessableEntity},
		{"invalid input", InvalidInput("bad json"), CodeInvalidInput, http.StatusBadRequest},
		{"forbidden", Forbidden("not your slot"), CodeForbidden, http.StatusForbidden},
		{"conflict", Conflict("rule overlaps"), CodeConflict, http.StatusConflict},
		{"slot unavailable", SlotUnavailable("s-1"), CodeSlotUnavailable, http.StatusConflict},
		{"booking window", BookingWindowViolation("too late", nil), CodeBookingWindowViolation, http.StatusUnprocessableEntity},
		{"invalid transition", InvalidTransition("s-1", "AVAILABLE", "cancel"), CodeInvalidTransition, http.StatusConflict},
		{"internal", Internal("boom", nil), CodeInternal, http.StatusInternalServerError},
		{"timeout", Timeout("slow"), CodeTimeout, http.StatusGatewayTimeout},
		{"unavailable", Unavailable("Redis"), CodeUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.StatusCode())
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestInvalidTransition_Details(t *testing.T) {
	err := InvalidTransition("slot-9", "COMPLETED", "cancel")

	assert.Equal(t, "cannot cancel a slot in status COMPLETED", err.Message)
	assert.Equal(t, "slot-9", err.Details["slot_id"])
	assert.Equal(t, "COMPLETED", err.Details["status"])
}

func TestAsAppError(t *testing.T) {
	t.Run("returns same app error", func(t *testing.T) {
		appErr := NotFound("Rule")
		assert.Same(t, appErr, AsAppError(appErr))
	})

	t.Run("unwraps wrapped app error", func(t *testing.T) {
		appErr := SlotUnavailable("s-1")
		wrapped := fmt.Errorf("booking: %w", appErr)
		assert.Same(t, appErr, AsAppError(wrapped))
		assert.True(t, IsAppError(wrapped))
	})

	t.Run("wraps plain error as internal", func(t *testing.T) {
		plain := errors.New("socket closed")
		result := AsAppError(plain)
		assert.Equal(t, CodeInternal, result.Code)
		assert.ErrorIs(t, result, plain)
		assert.False(t, IsAppError(plain))
	})
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", BookingWindowViolation("too soon", nil))

	assert.True(t, HasCode(err, CodeBookingWindowViolation))
	assert.False(t, HasCode(err, CodeConflict))
	assert.False(t, HasCode(errors.New("plain"), CodeInternal))
	assert.False(t, HasCode(nil, CodeInternal))
}

func TestAppError_ToJSON(t *testing.T) {
	data := NotFoundWithID("Slot", "12345").ToJSON()
	require.NotEmpty(t, data)

	assert.JSONEq(t,
		`{"code":"NOT_FOUND","message":"Slot not found","details":{"resource":"Slot","id":"12345"}}`,
		string(data),
	)
}
