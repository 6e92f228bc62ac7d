package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmehra2102/prod-golang-projects/propflow/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrInvalidCredentials = errors.New("invalid or expired refresh token")
	ErrAccountInactive    = errors.New("account is inactive")
)

// TokenIssuer signs and verifies the bearer tokens accepted by the API.
type TokenIssuer interface {
	GenerateTokenPair(claims *domain.Claims) (*domain.TokenPair, error)
	ValidateRefreshToken(token string) (*domain.Claims, error)
}

// AuthService renews sessions for accounts owned by the identity store. Passwords
// never reach this service.
type AuthService struct {
	users  UserRepository
	tokens TokenIssuer
	log    *zap.Logger
}

func NewAuthService(users UserRepository, tokens TokenIssuer, log *zap.Logger) *AuthService {
	return &AuthService{users: users, tokens: tokens, log: log}
}

// RefreshToken issues a new token pair given a valid refresh token. Role and email are
// reloaded so that a demoted or deactivated account loses its old claims.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string, ip string) (*domain.TokenPair, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if !user.IsActive {
		s.log.Warn("refresh for inactive account",
			zap.String("user_id", user.ID.String()),
			zap.String("ip", ip),
		)
		return nil, ErrAccountInactive
	}

	pair, err := s.tokens.GenerateTokenPair(&domain.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		s.log.Error("failed to generate token pair", zap.Error(err))
		return nil, fmt.Errorf("generating tokens: %w", err)
	}
	return pair, nil
}
