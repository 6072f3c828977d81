package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"payment-node/config"
	"payment-node/internal/core/ports/mocks"
	"payment-node/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestNodeAuthService_Login_Plaintext(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	hashSvc := mocks.NewMockHashService(ctrl)
	tokenSvc := mocks.NewMockTokenService(ctrl)
	expiry := time.Now().Add(24 * time.Hour)
	tokenSvc.EXPECT().Generate("operator").Return("jwt-token", expiry, nil)

	svc := NewNodeAuthService(config.AuthConfig{Password: "hunter2"}, hashSvc, tokenSvc)

	token, exp, err := svc.Login(context.Background(), "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", token)
	assert.Equal(t, expiry, exp)
}

func TestNodeAuthService_Login_PlaintextWrongPassword(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := NewNodeAuthService(
		config.AuthConfig{Password: "hunter2"},
		mocks.NewMockHashService(ctrl),
		mocks.NewMockTokenService(ctrl),
	)

	_, _, err := svc.Login(context.Background(), "wrong")
	require.Error(t, err)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "AUTH_001", appErr.Code)
}

func TestNodeAuthService_Login_HashTakesPrecedence(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	hashSvc := mocks.NewMockHashService(ctrl)
	tokenSvc := mocks.NewMockTokenService(ctrl)
	hashSvc.EXPECT().Verify("hunter2", "$argon2id$hash").Return(true, nil)
	tokenSvc.EXPECT().Generate("operator").Return("jwt-token", time.Now().Add(time.Hour), nil)

	// Plaintext set to something else entirely; the hash decides.
	svc := NewNodeAuthService(
		config.AuthConfig{Password: "ignored", PasswordHash: "$argon2id$hash"},
		hashSvc, tokenSvc,
	)

	token, _, err := svc.Login(context.Background(), "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", token)
}

func TestNodeAuthService_Login_HashMismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	hashSvc := mocks.NewMockHashService(ctrl)
	hashSvc.EXPECT().Verify("wrong", "$argon2id$hash").Return(false, nil)

	svc := NewNodeAuthService(
		config.AuthConfig{PasswordHash: "$argon2id$hash"},
		hashSvc,
		mocks.NewMockTokenService(ctrl),
	)

	_, _, err := svc.Login(context.Background(), "wrong")
	require.Error(t, err)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "AUTH_001", appErr.Code)
}

func TestNodeAuthService_Login_NoPasswordConfigured(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := NewNodeAuthService(
		config.AuthConfig{},
		mocks.NewMockHashService(ctrl),
		mocks.NewMockTokenService(ctrl),
	)

	_, _, err := svc.Login(context.Background(), "anything")
	assert.Error(t, err, "login must fail when no password is configured")
}
