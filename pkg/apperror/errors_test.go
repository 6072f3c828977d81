package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("CMD_001", "Missing amount", http.StatusBadRequest),
			expected: "[CMD_001] Missing amount",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("STORE_001", "Ledger write failed", http.StatusServiceUnavailable, fmt.Errorf("connection refused")),
			expected: "[STORE_001] Ledger write failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_IsNilUnwrap(t *testing.T) {
	appErr := New("CMD_001", "test", http.StatusBadRequest)
	assert.Nil(t, appErr.Unwrap())
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"Storage", ErrStorage(errors.New("down")), "STORE_001", 503},
		{"InvalidArgument", ErrInvalidArgument("bad amount"), "CMD_001", 400},
		{"CommandFailed", ErrCommandFailed("no route"), "CMD_002", 422},
		{"NotFound", ErrNotFound("Payment"), "CMD_003", 404},
		{"CommandTimeout", ErrCommandTimeout(), "CMD_004", 504},
		{"SubscriberOverflow", ErrSubscriberOverflow(), "SUB_001", 503},
		{"DeliveryFailure", ErrDeliveryFailure(errors.New("timeout")), "HOOK_001", 502},
		{"EndpointExists", ErrEndpointExists(), "HOOK_002", 409},
		{"InvalidCredentials", ErrInvalidCredentials(), "AUTH_001", 401},
		{"InvalidToken", ErrInvalidToken(), "AUTH_002", 401},
		{"RateLimit", ErrRateLimitExceeded(), "RATE_001", 429},
		{"Internal", InternalError(errors.New("boom")), "SYS_001", 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestErrCommandFailed_Reason(t *testing.T) {
	err := ErrCommandFailed("no route to destination")
	assert.Contains(t, err.Message, "no route to destination")
}
