package service

import (
	"context"

	"tillsync-server/internal/domain"
	"tillsync-server/internal/repository"
)

type TerminalService struct {
	terminals repository.TerminalRepository
}

func NewTerminalService(terminals repository.TerminalRepository) *TerminalService {
	return &TerminalService{terminals: terminals}
}

func (s *TerminalService) List(ctx context.Context, scope domain.Scope) ([]*domain.TerminalResponse, error) {
	terminals, err := s.terminals.ListByStore(ctx, scope.StoreID)
	if err != nil {
		return nil, err
	}

	responses := make([]*domain.TerminalResponse, 0, len(terminals))
	for _, t := range terminals {
		responses = append(responses, &domain.TerminalResponse{
			ID:         t.ID,
			StoreID:    t.StoreID,
			Name:       t.Name,
			Kind:       t.Kind,
			AppVersion: t.AppVersion,
			LastSeen:   t.LastSeen,
			IsRevoked:  t.IsRevoked,
		})
	}

	return responses, nil
}

func (s *TerminalService) Revoke(ctx context.Context, scope domain.Scope, terminalID string) error {
	terminal, err := s.terminals.Get(ctx, terminalID)
	if err != nil {
		return err
	}
	if terminal.StoreID != scope.StoreID {
		return repository.ErrNotFound
	}
	return s.terminals.Revoke(ctx, terminalID)
}

func (s *TerminalService) TouchLastSeen(ctx context.Context, terminalID string) error {
	return s.terminals.TouchLastSeen(ctx, terminalID)
}
