package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"payment-node/config"
	"payment-node/internal/core/ports"
	"payment-node/pkg/apperror"
)

// NodeAuthService implements ports.AuthService. The daemon has a single
// operator identity protected by one password; Login exchanges it for a JWT
// the API middleware accepts.
type NodeAuthService struct {
	cfg      config.AuthConfig
	hashSvc  ports.HashService
	tokenSvc ports.TokenService
}

// NewNodeAuthService creates a new NodeAuthService.
func NewNodeAuthService(cfg config.AuthConfig, hashSvc ports.HashService, tokenSvc ports.TokenService) *NodeAuthService {
	return &NodeAuthService{
		cfg:      cfg,
		hashSvc:  hashSvc,
		tokenSvc: tokenSvc,
	}
}

// Login validates the node password and returns a JWT token. A configured
// password hash wins over a plaintext password; plaintext exists for local
// development only.
func (s *NodeAuthService) Login(ctx context.Context, password string) (string, time.Time, error) {
	if err := s.verify(password); err != nil {
		return "", time.Time{}, err
	}

	token, expiry, err := s.tokenSvc.Generate("operator")
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}
	return token, expiry, nil
}

func (s *NodeAuthService) verify(password string) error {
	if s.cfg.PasswordHash != "" {
		valid, err := s.hashSvc.Verify(password, s.cfg.PasswordHash)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("verify password: %w", err))
		}
		if !valid {
			return apperror.ErrInvalidCredentials()
		}
		return nil
	}

	if s.cfg.Password == "" {
		return apperror.ErrInvalidCredentials()
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Password)) != 1 {
		return apperror.ErrInvalidCredentials()
	}
	return nil
}
