package service

import (
	"context"
	"time"

	"tillsync-server/internal/domain"
	"tillsync-server/internal/repository"
)

// PullService streams back every record in scope changed after a watermark,
// table by table, tombstones included.
type PullService struct {
	records      repository.RecordRepository
	defaultLimit int
	now          func() time.Time
}

func NewPullService(records repository.RecordRepository, defaultLimit int) *PullService {
	return &PullService{
		records:      records,
		defaultLimit: defaultLimit,
		now:          time.Now,
	}
}

// Changes collects the per-table deltas since opts.Since. Each table is capped
// at the per-table limit; when a cap truncates a table, the returned synced_at
// falls back to the updated_at of the last record that did fit, so the next
// pull resumes without gaps. Untruncated pulls stamp the request time.
func (s *PullService) Changes(ctx context.Context, scope domain.Scope, opts domain.PullOptions) (*domain.PullPayload, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}

	payload := &domain.PullPayload{
		Tables:   make(map[domain.Table][]*domain.Record),
		SyncedAt: s.now().UTC(),
	}

	for _, desc := range domain.Tables() {
		records, err := s.records.ChangedSince(ctx, scope, desc.Name, opts.Since, limit)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			continue
		}

		payload.Tables[desc.Name] = records

		if len(records) == limit {
			watermark := records[len(records)-1].UpdatedAt
			if watermark.Before(payload.SyncedAt) {
				payload.SyncedAt = watermark
			}
		}
	}

	return payload, nil
}
