package service

import (
	"context"
	"fmt"
	"time"

	"tillsync-server/internal/domain"
	"tillsync-server/internal/repository"
	"tillsync-server/pkg/hash"

	"github.com/google/uuid"
)

type StoreService struct {
	stores repository.StoreRepository
}

func NewStoreService(stores repository.StoreRepository) *StoreService {
	return &StoreService{stores: stores}
}

func (s *StoreService) Register(ctx context.Context, req *domain.RegisterStoreRequest) (*domain.StoreResponse, error) {
	hashedCode, err := hash.Hash(req.AccessCode)
	if err != nil {
		return nil, fmt.Errorf("failed to hash access code: %w", err)
	}

	now := time.Now().UTC()
	store := &domain.Store{
		ID:             uuid.New().String(),
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		AccessCode:     hashedCode,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.stores.Create(ctx, store); err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	return &domain.StoreResponse{
		ID:             store.ID,
		OrganizationID: store.OrganizationID,
		Name:           store.Name,
		CreatedAt:      store.CreatedAt,
	}, nil
}

func (s *StoreService) Get(ctx context.Context, id string) (*domain.StoreResponse, error) {
	store, err := s.stores.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return &domain.StoreResponse{
		ID:             store.ID,
		OrganizationID: store.OrganizationID,
		Name:           store.Name,
		CreatedAt:      store.CreatedAt,
	}, nil
}
