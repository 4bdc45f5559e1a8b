package service

import (
	"context"
	"fmt"
	"time"

	"tillsync-server/internal/domain"
	"tillsync-server/internal/repository"
	"tillsync-server/pkg/hash"
	"tillsync-server/pkg/jwt"

	"github.com/google/uuid"
)

// AuthService exchanges a store access code for a scoped terminal token. The
// token carries the store, organization and terminal ids that become the
// tenant scope of every sync call.
type AuthService struct {
	stores            repository.StoreRepository
	terminals         repository.TerminalRepository
	jwtSecret         string
	jwtExpiration     time.Duration
	refreshExpiration time.Duration
}

func NewAuthService(
	stores repository.StoreRepository,
	terminals repository.TerminalRepository,
	jwtSecret string,
	jwtExp, refreshExp time.Duration,
) *AuthService {
	return &AuthService{
		stores:            stores,
		terminals:         terminals,
		jwtSecret:         jwtSecret,
		jwtExpiration:     jwtExp,
		refreshExpiration: refreshExp,
	}
}

func (s *AuthService) TerminalLogin(ctx context.Context, req *domain.TerminalLoginRequest) (*domain.TerminalLoginResponse, error) {
	store, err := s.stores.Get(ctx, req.StoreID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := hash.Compare(store.AccessCode, req.AccessCode); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	terminal := &domain.Terminal{
		ID:         uuid.New().String(),
		StoreID:    store.ID,
		Name:       req.Name,
		Kind:       req.Kind,
		AppVersion: req.AppVersion,
		LastSeen:   now,
		CreatedAt:  now,
	}

	if err := s.terminals.Create(ctx, terminal); err != nil {
		return nil, fmt.Errorf("failed to register terminal: %w", err)
	}

	accessToken, err := jwt.GenerateToken(store.ID, store.OrganizationID, terminal.ID, s.jwtExpiration, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := jwt.GenerateRefreshToken(store.ID, store.OrganizationID, terminal.ID, s.refreshExpiration, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &domain.TerminalLoginResponse{
		Terminal: &domain.TerminalResponse{
			ID:         terminal.ID,
			StoreID:    terminal.StoreID,
			Name:       terminal.Name,
			Kind:       terminal.Kind,
			AppVersion: terminal.AppVersion,
			LastSeen:   terminal.LastSeen,
		},
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtExpiration.Seconds()),
	}, nil
}

func (s *AuthService) Refresh(ctx context.Context, req *domain.RefreshTokenRequest) (*domain.TokenResponse, error) {
	claims, err := jwt.ValidateRefreshToken(req.RefreshToken, s.jwtSecret)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	terminal, err := s.terminals.Get(ctx, claims.TerminalID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if terminal.IsRevoked {
		return nil, ErrTerminalRevoked
	}

	accessToken, err := jwt.GenerateToken(claims.StoreID, claims.OrganizationID, claims.TerminalID, s.jwtExpiration, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(s.jwtExpiration.Seconds()),
	}, nil
}
