package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tillsync-server/internal/domain"
	"tillsync-server/internal/repository"

	"github.com/google/uuid"
)

// AuditEntry is handed to the audit hook after each applied change entry,
// outside the compare-and-set boundary.
type AuditEntry struct {
	Scope    domain.Scope
	Table    string
	Action   domain.ChangeAction
	LocalID  string
	ServerID string
	Version  int64
	Status   domain.ChangeStatus
}

type AuditFunc func(entry AuditEntry)

// PushService applies change batches from terminals against the authoritative
// store. Entries are processed strictly in supplied order; each entry is
// atomic on its own record via the store's compare-and-set, and a replayed
// (storeId, localId) pair returns its original receipt instead of being
// applied again.
type PushService struct {
	records    repository.RecordRepository
	conflicts  repository.ConflictRepository
	receipts   repository.ReceiptRepository
	receiptTTL time.Duration
	audit      AuditFunc
	now        func() time.Time
}

func NewPushService(
	records repository.RecordRepository,
	conflicts repository.ConflictRepository,
	receipts repository.ReceiptRepository,
	receiptTTL time.Duration,
) *PushService {
	return &PushService{
		records:    records,
		conflicts:  conflicts,
		receipts:   receipts,
		receiptTTL: receiptTTL,
		now:        time.Now,
	}
}

// SetAuditHook installs a best-effort observer invoked after every applied
// entry.
func (s *PushService) SetAuditHook(fn AuditFunc) {
	s.audit = fn
}

// Apply processes one push batch and returns a result per entry, parallel to
// the input. Later entries observe the effects of earlier accepted entries.
func (s *PushService) Apply(ctx context.Context, scope domain.Scope, entries []domain.ChangeEntry) []domain.ChangeResult {
	results := make([]domain.ChangeResult, 0, len(entries))
	for i := range entries {
		results = append(results, *s.applyEntry(ctx, scope, &entries[i]))
	}
	return results
}

func (s *PushService) applyEntry(ctx context.Context, scope domain.Scope, entry *domain.ChangeEntry) *domain.ChangeResult {
	if prior, err := s.receipts.Find(ctx, scope.StoreID, entry.LocalID); err == nil {
		return prior
	}

	result := s.applyOnce(ctx, scope, entry)

	// Retryable failures leave no receipt so the retry is applied for real.
	if !retryableResult(result) {
		if err := s.receipts.Save(ctx, scope.StoreID, entry.LocalID, result, s.receiptTTL); errors.Is(err, repository.ErrCASMismatch) {
			if prior, ferr := s.receipts.Find(ctx, scope.StoreID, entry.LocalID); ferr == nil {
				return prior
			}
		}
	}

	if s.audit != nil {
		s.audit(AuditEntry{
			Scope:    scope,
			Table:    entry.Table,
			Action:   entry.Action,
			LocalID:  entry.LocalID,
			ServerID: result.ServerID,
			Version:  result.Version,
			Status:   result.Status,
		})
	}

	return result
}

func (s *PushService) applyOnce(ctx context.Context, scope domain.Scope, entry *domain.ChangeEntry) *domain.ChangeResult {
	desc, ok := domain.LookupTable(entry.Table)
	if !ok {
		return failedResult(entry, domain.ErrorKindUnknownTable, "", "table is not tracked")
	}

	switch entry.Action {
	case domain.ActionCreate:
		return s.applyCreate(ctx, scope, desc, entry)
	case domain.ActionUpdate:
		return s.applyMutation(ctx, scope, desc, entry, false)
	case domain.ActionDelete:
		return s.applyMutation(ctx, scope, desc, entry, true)
	default:
		return failedResult(entry, domain.ErrorKindMalformedPayload, "", "unknown action")
	}
}

func (s *PushService) applyCreate(ctx context.Context, scope domain.Scope, desc *domain.TableDescriptor, entry *domain.ChangeEntry) *domain.ChangeResult {
	payload := payloadWithoutMeta(entry.Data)
	if len(payload) == 0 {
		return failedResult(entry, domain.ErrorKindMalformedPayload, "", "create requires a full payload")
	}

	for _, field := range desc.UniqueFields {
		value, ok := payload[field].(string)
		if !ok || value == "" {
			continue
		}
		if err := s.records.ReserveUnique(ctx, scope, desc.Name, field, value, entry.LocalID); err != nil {
			if errors.Is(err, repository.ErrUniqueTaken) {
				return failedResult(entry, domain.ErrorKindUniqueViolation, field, "value already in use")
			}
			return failedResult(entry, domain.ErrorKindStorageUnavailable, "", err.Error())
		}
	}

	rec := &domain.Record{
		ServerID:  uuid.New().String(),
		LocalID:   entry.LocalID,
		Table:     desc.Name,
		StoreID:   scope.StoreID,
		Version:   1,
		UpdatedAt: s.now().UTC(),
		Tombstone: false,
		Payload:   payload,
	}

	if err := s.records.Insert(ctx, rec); err != nil {
		return failedResult(entry, domain.ErrorKindStorageUnavailable, "", err.Error())
	}

	return &domain.ChangeResult{
		LocalID:  entry.LocalID,
		Status:   domain.StatusAccepted,
		ServerID: rec.ServerID,
		Version:  rec.Version,
	}
}

func (s *PushService) applyMutation(ctx context.Context, scope domain.Scope, desc *domain.TableDescriptor, entry *domain.ChangeEntry, tombstone bool) *domain.ChangeResult {
	serverID, ok := stringField(entry.Data, domain.DataKeyServerID)
	if !ok {
		return failedResult(entry, domain.ErrorKindMalformedPayload, "", "missing server_id")
	}
	baseVersion, ok := int64Field(entry.Data, domain.DataKeyBaseVersion)
	if !ok {
		return failedResult(entry, domain.ErrorKindMalformedPayload, "", "missing base_version")
	}

	rec, rev, err := s.records.Get(ctx, scope, desc.Name, serverID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return failedResult(entry, domain.ErrorKindNotFound, "", "record not found")
		}
		return failedResult(entry, domain.ErrorKindStorageUnavailable, "", err.Error())
	}

	if rec.Tombstone {
		return failedResult(entry, domain.ErrorKindGone, "", "record has been deleted")
	}

	if rec.Version > baseVersion {
		return s.recordConflict(ctx, scope, desc, entry, rec, baseVersion)
	}
	if rec.Version < baseVersion {
		return failedResult(entry, domain.ErrorKindMalformedPayload, "", "base_version ahead of server")
	}

	if tombstone {
		rec.Tombstone = true
	} else {
		rec.Payload = mergePayload(rec.Payload, payloadWithoutMeta(entry.Data))
	}
	rec.Version = baseVersion + 1
	rec.UpdatedAt = s.now().UTC()

	if err := s.records.Update(ctx, rec, rev); err != nil {
		if errors.Is(err, repository.ErrCASMismatch) {
			// A concurrent writer won the compare-and-set; reload its state
			// and surface this entry as the losing side.
			fresh, _, gerr := s.records.Get(ctx, scope, desc.Name, serverID)
			if gerr != nil {
				return failedResult(entry, domain.ErrorKindStorageUnavailable, "", gerr.Error())
			}
			if fresh.Tombstone {
				return failedResult(entry, domain.ErrorKindGone, "", "record has been deleted")
			}
			return s.recordConflict(ctx, scope, desc, entry, fresh, baseVersion)
		}
		return failedResult(entry, domain.ErrorKindStorageUnavailable, "", err.Error())
	}

	return &domain.ChangeResult{
		LocalID:  entry.LocalID,
		Status:   domain.StatusAccepted,
		ServerID: rec.ServerID,
		Version:  rec.Version,
	}
}

func (s *PushService) recordConflict(ctx context.Context, scope domain.Scope, desc *domain.TableDescriptor, entry *domain.ChangeEntry, rec *domain.Record, baseVersion int64) *domain.ChangeResult {
	conflict := &domain.Conflict{
		ID:            uuid.New().String(),
		StoreID:       scope.StoreID,
		Table:         desc.Name,
		ServerID:      rec.ServerID,
		ClientLocalID: entry.LocalID,
		BaseVersion:   baseVersion,
		ServerPayload: rec.Payload,
		ClientPayload: payloadWithoutMeta(entry.Data),
		Status:        domain.ConflictOpen,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.conflicts.Create(ctx, conflict); err != nil {
		return failedResult(entry, domain.ErrorKindStorageUnavailable, "", err.Error())
	}

	return &domain.ChangeResult{
		LocalID:    entry.LocalID,
		Status:     domain.StatusConflicted,
		ServerID:   rec.ServerID,
		ConflictID: conflict.ID,
	}
}

// ForceApply fast-forwards a payload onto the current version of a record,
// whatever that version is. Used by conflict resolution; a concurrent writer
// just moves the target and the write is retried.
func (s *PushService) ForceApply(ctx context.Context, scope domain.Scope, table domain.Table, serverID string, payload map[string]interface{}) (*domain.Record, error) {
	const casAttempts = 3

	for attempt := 0; attempt < casAttempts; attempt++ {
		rec, rev, err := s.records.Get(ctx, scope, table, serverID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrRecordNotFound
			}
			return nil, err
		}
		if rec.Tombstone {
			return nil, ErrRecordGone
		}

		rec.Payload = mergePayload(rec.Payload, payloadWithoutMeta(payload))
		rec.Version++
		rec.UpdatedAt = s.now().UTC()

		err = s.records.Update(ctx, rec, rev)
		if errors.Is(err, repository.ErrCASMismatch) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if s.audit != nil {
			s.audit(AuditEntry{
				Scope:    scope,
				Table:    string(table),
				Action:   domain.ActionUpdate,
				ServerID: rec.ServerID,
				Version:  rec.Version,
				Status:   domain.StatusAccepted,
			})
		}

		return rec, nil
	}

	return nil, repository.ErrCASMismatch
}

func failedResult(entry *domain.ChangeEntry, kind domain.ErrorKind, field, message string) *domain.ChangeResult {
	return &domain.ChangeResult{
		LocalID: entry.LocalID,
		Status:  domain.StatusFailed,
		Error: &domain.ChangeError{
			Kind:    kind,
			Field:   field,
			Message: message,
		},
	}
}

func retryableResult(result *domain.ChangeResult) bool {
	return result.Status == domain.StatusFailed && result.Error != nil && result.Error.Kind.Retryable()
}

// payloadWithoutMeta copies data minus the reserved identity keys, so they
// never leak into stored payloads.
func payloadWithoutMeta(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		if k == domain.DataKeyServerID || k == domain.DataKeyBaseVersion {
			continue
		}
		out[k] = v
	}
	return out
}

// mergePayload overlays client fields onto the stored payload, shallow and
// per top-level key only.
func mergePayload(stored, incoming map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(stored)+len(incoming))
	for k, v := range stored {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

func stringField(data map[string]interface{}, key string) (string, bool) {
	v, ok := data[key].(string)
	return v, ok && v != ""
}

func int64Field(data map[string]interface{}, key string) (int64, bool) {
	switch v := data[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}
