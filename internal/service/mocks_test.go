package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tillsync-server/internal/domain"
	"tillsync-server/internal/repository"
)

// mockRecordRepository mimics the revision-based compare-and-set of the real
// store: every write bumps the revision, and an Update presenting a stale
// revision fails with ErrCASMismatch.
type mockRecordRepository struct {
	mu             sync.Mutex
	records        map[string]*domain.Record
	revs           map[string]int
	reservations   map[string]string
	failNext       error
	failNextInsert error
}

func newMockRecordRepository() *mockRecordRepository {
	return &mockRecordRepository{
		records:      make(map[string]*domain.Record),
		revs:         make(map[string]int),
		reservations: make(map[string]string),
	}
}

func recordKey(table domain.Table, serverID string) string {
	return string(table) + ":" + serverID
}

func (m *mockRecordRepository) Insert(ctx context.Context, rec *domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if m.failNextInsert != nil {
		err := m.failNextInsert
		m.failNextInsert = nil
		return err
	}
	key := recordKey(rec.Table, rec.ServerID)
	cp := *rec
	m.records[key] = &cp
	m.revs[key] = 1
	return nil
}

func (m *mockRecordRepository) Get(ctx context.Context, scope domain.Scope, table domain.Table, serverID string) (*domain.Record, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, "", err
	}
	key := recordKey(table, serverID)
	rec, ok := m.records[key]
	if !ok || rec.StoreID != scope.StoreID {
		return nil, "", repository.ErrNotFound
	}
	cp := *rec
	cp.Payload = copyPayload(rec.Payload)
	return &cp, fmt.Sprintf("%d", m.revs[key]), nil
}

func (m *mockRecordRepository) Update(ctx context.Context, rec *domain.Record, rev string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	key := recordKey(rec.Table, rec.ServerID)
	if _, ok := m.records[key]; !ok {
		return repository.ErrNotFound
	}
	if rev != fmt.Sprintf("%d", m.revs[key]) {
		return repository.ErrCASMismatch
	}
	cp := *rec
	cp.Payload = copyPayload(rec.Payload)
	m.records[key] = &cp
	m.revs[key]++
	return nil
}

func (m *mockRecordRepository) ChangedSince(ctx context.Context, scope domain.Scope, table domain.Table, since time.Time, limit int) ([]*domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	var out []*domain.Record
	for _, rec := range m.records {
		if rec.StoreID != scope.StoreID || rec.Table != table {
			continue
		}
		if !rec.UpdatedAt.After(since) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRecordRepository) ReserveUnique(ctx context.Context, scope domain.Scope, table domain.Table, field, value, ownerLocalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	key := fmt.Sprintf("%s:%s:%s:%s", scope.StoreID, table, field, value)
	if owner, taken := m.reservations[key]; taken {
		if owner == ownerLocalID {
			return nil
		}
		return repository.ErrUniqueTaken
	}
	m.reservations[key] = ownerLocalID
	return nil
}

func (m *mockRecordRepository) takeFailure() error {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	return nil
}

type mockConflictRepository struct {
	mu        sync.Mutex
	conflicts map[string]*domain.Conflict
}

func newMockConflictRepository() *mockConflictRepository {
	return &mockConflictRepository{
		conflicts: make(map[string]*domain.Conflict),
	}
}

func (m *mockConflictRepository) Create(ctx context.Context, conflict *domain.Conflict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *conflict
	m.conflicts[conflict.ID] = &cp
	return nil
}

func (m *mockConflictRepository) Get(ctx context.Context, scope domain.Scope, conflictID string) (*domain.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conflict, ok := m.conflicts[conflictID]
	if !ok || conflict.StoreID != scope.StoreID {
		return nil, repository.ErrNotFound
	}
	cp := *conflict
	return &cp, nil
}

func (m *mockConflictRepository) List(ctx context.Context, scope domain.Scope, filter domain.ConflictFilter) (*domain.ConflictList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Conflict
	for _, conflict := range m.conflicts {
		if conflict.StoreID != scope.StoreID {
			continue
		}
		if filter.Table != "" && conflict.Table != filter.Table {
			continue
		}
		if filter.Status != "" && conflict.Status != filter.Status {
			continue
		}
		cp := *conflict
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 50
	}
	total := len(out)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	return &domain.ConflictList{
		Conflicts: out[start:end],
		Pagination: domain.Pagination{
			Page:    page,
			PerPage: perPage,
			Total:   total,
		},
	}, nil
}

func (m *mockConflictRepository) Transition(ctx context.Context, scope domain.Scope, conflictID string, status domain.ConflictStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conflict, ok := m.conflicts[conflictID]
	if !ok || conflict.StoreID != scope.StoreID {
		return repository.ErrNotFound
	}
	if conflict.Status.Terminal() {
		return repository.ErrConflictTerminal
	}
	conflict.Status = status
	now := time.Now().UTC()
	conflict.ResolvedAt = &now
	return nil
}

type mockReceiptRepository struct {
	mu       sync.Mutex
	receipts map[string]*domain.ChangeResult
}

func newMockReceiptRepository() *mockReceiptRepository {
	return &mockReceiptRepository{
		receipts: make(map[string]*domain.ChangeResult),
	}
}

func receiptKey(storeID, localID string) string {
	return storeID + ":" + localID
}

func (m *mockReceiptRepository) Find(ctx context.Context, storeID, localID string) (*domain.ChangeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result, ok := m.receipts[receiptKey(storeID, localID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *result
	return &cp, nil
}

func (m *mockReceiptRepository) Save(ctx context.Context, storeID, localID string, result *domain.ChangeResult, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *result
	m.receipts[receiptKey(storeID, localID)] = &cp
	return nil
}

func (m *mockReceiptRepository) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}

func copyPayload(payload map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}
