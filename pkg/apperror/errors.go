package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Storage (STORE) ----

// ErrStorage surfaces a failed durable write or read. The triggering operation
// must not assume anything was recorded.
func ErrStorage(err error) *AppError {
	return Wrap("STORE_001", "Ledger storage unavailable", http.StatusServiceUnavailable, err)
}

// ---- Commands (CMD) ----

func ErrInvalidArgument(message string) *AppError {
	return New("CMD_001", message, http.StatusBadRequest)
}

func ErrCommandFailed(reason string) *AppError {
	return New("CMD_002", fmt.Sprintf("Command failed: %s", reason), http.StatusUnprocessableEntity)
}

func ErrNotFound(entity string) *AppError {
	return New("CMD_003", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrCommandTimeout() *AppError {
	return New("CMD_004", "Timed out waiting for command result", http.StatusGatewayTimeout)
}

// ---- Subscriptions (SUB) ----

func ErrSubscriberOverflow() *AppError {
	return New("SUB_001", "Subscriber queue overflow, resubscribe with a fresh cursor", http.StatusServiceUnavailable)
}

// ---- Webhooks (HOOK) ----

func ErrDeliveryFailure(err error) *AppError {
	return Wrap("HOOK_001", "Webhook delivery failed", http.StatusBadGateway, err)
}

func ErrEndpointExists() *AppError {
	return New("HOOK_002", "Webhook endpoint already registered for this URL", http.StatusConflict)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_002", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
