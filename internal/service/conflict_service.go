package service

import (
	"context"
	"errors"

	"tillsync-server/internal/domain"
	"tillsync-server/internal/repository"
)

// ConflictService is the registry of unresolved concurrent edits. Conflicts
// stay open until a terminal resolution; resolving for the client or with a
// merged payload re-invokes the applier fast-forwarded onto the current
// server version.
type ConflictService struct {
	conflicts repository.ConflictRepository
	push      *PushService
}

func NewConflictService(conflicts repository.ConflictRepository, push *PushService) *ConflictService {
	return &ConflictService{
		conflicts: conflicts,
		push:      push,
	}
}

func (s *ConflictService) Get(ctx context.Context, scope domain.Scope, conflictID string) (*domain.Conflict, error) {
	conflict, err := s.conflicts.Get(ctx, scope, conflictID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConflictNotFound
		}
		return nil, err
	}
	return conflict, nil
}

func (s *ConflictService) List(ctx context.Context, scope domain.Scope, filter domain.ConflictFilter) (*domain.ConflictList, error) {
	return s.conflicts.List(ctx, scope, filter)
}

// Resolve applies the chosen resolution and moves the conflict to its
// terminal status. For choice=server nothing is written and the returned
// result is nil; otherwise the result mirrors a push result for the
// fast-forwarded write.
func (s *ConflictService) Resolve(ctx context.Context, scope domain.Scope, conflictID string, req *domain.ResolveConflictRequest) (*domain.ChangeResult, error) {
	conflict, err := s.Get(ctx, scope, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict.Status.Terminal() {
		return nil, ErrConflictResolved
	}

	switch req.Choice {
	case domain.ChoiceServer:
		if err := s.transition(ctx, scope, conflictID, domain.ConflictResolvedServer); err != nil {
			return nil, err
		}
		return nil, nil

	case domain.ChoiceClient:
		return s.applyAndClose(ctx, scope, conflict, conflict.ClientPayload, domain.ConflictResolvedClient)

	case domain.ChoiceMerged:
		if len(req.MergedPayload) == 0 {
			return nil, ErrMergedPayloadRequired
		}
		return s.applyAndClose(ctx, scope, conflict, req.MergedPayload, domain.ConflictMerged)

	default:
		return nil, ErrMergedPayloadRequired
	}
}

// Reject discards the client change without writing anything.
func (s *ConflictService) Reject(ctx context.Context, scope domain.Scope, conflictID string) error {
	conflict, err := s.Get(ctx, scope, conflictID)
	if err != nil {
		return err
	}
	if conflict.Status.Terminal() {
		return ErrConflictResolved
	}
	return s.transition(ctx, scope, conflictID, domain.ConflictRejected)
}

func (s *ConflictService) applyAndClose(ctx context.Context, scope domain.Scope, conflict *domain.Conflict, payload map[string]interface{}, status domain.ConflictStatus) (*domain.ChangeResult, error) {
	rec, err := s.push.ForceApply(ctx, scope, conflict.Table, conflict.ServerID, payload)
	if err != nil {
		return nil, err
	}

	if err := s.transition(ctx, scope, conflict.ID, status); err != nil {
		return nil, err
	}

	return &domain.ChangeResult{
		LocalID:  conflict.ClientLocalID,
		Status:   domain.StatusAccepted,
		ServerID: rec.ServerID,
		Version:  rec.Version,
	}, nil
}

func (s *ConflictService) transition(ctx context.Context, scope domain.Scope, conflictID string, status domain.ConflictStatus) error {
	err := s.conflicts.Transition(ctx, scope, conflictID, status)
	if errors.Is(err, repository.ErrConflictTerminal) || errors.Is(err, repository.ErrCASMismatch) {
		return ErrConflictResolved
	}
	return err
}
