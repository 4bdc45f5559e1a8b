package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"tillsync-server/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport scripts server answers per local id and records what was
// pushed.
type fakeTransport struct {
	pushes  [][]domain.ChangeEntry
	results map[string]domain.ChangeResult
	pushErr error
	payload *domain.PullPayload
	pullErr error
	pullCnt int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		results: make(map[string]domain.ChangeResult),
		payload: &domain.PullPayload{
			Tables:   map[domain.Table][]*domain.Record{},
			SyncedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func (f *fakeTransport) Push(ctx context.Context, entries []domain.ChangeEntry) (*domain.PushResponse, error) {
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	f.pushes = append(f.pushes, entries)
	res := &domain.PushResponse{}
	for _, entry := range entries {
		result, ok := f.results[entry.LocalID]
		if !ok {
			result = domain.ChangeResult{
				LocalID:  entry.LocalID,
				Status:   domain.StatusAccepted,
				ServerID: "srv-" + entry.LocalID,
				Version:  1,
			}
		}
		res.Results = append(res.Results, result)
	}
	return res, nil
}

func (f *fakeTransport) Pull(ctx context.Context, since time.Time, limit int) (*domain.PullPayload, error) {
	f.pullCnt++
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return f.payload, nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *Journal, *LocalStore, *fakeTransport) {
	t.Helper()
	db := openTestDB(t)
	journal, err := NewJournal(db)
	require.NoError(t, err)
	store, err := NewLocalStore(db)
	require.NoError(t, err)

	transport := newFakeTransport()
	cfg := DefaultCoordinatorConfig()
	cfg.BackoffBase = time.Hour
	coord := NewCoordinator(journal, store, transport, cfg)
	return coord, journal, store, transport
}

func TestCoordinator_SyncDrainsJournal(t *testing.T) {
	coord, journal, store, transport := newTestCoordinator(t)
	ctx := context.Background()

	appendEntry(t, journal, "a")
	appendEntry(t, journal, "b")

	require.NoError(t, coord.Sync(ctx))

	n, err := journal.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.Len(t, transport.pushes, 1)
	assert.Len(t, transport.pushes[0], 2)

	// Accepted creates register their id mapping.
	serverID, err := store.ServerID(ctx, "products", "a")
	require.NoError(t, err)
	assert.Equal(t, "srv-a", serverID)
}

func TestCoordinator_PullAppliesAndAdvancesWatermark(t *testing.T) {
	coord, _, store, transport := newTestCoordinator(t)
	ctx := context.Background()

	transport.payload.Tables[domain.TableProducts] = []*domain.Record{
		{
			ServerID:  "srv-1",
			Table:     domain.TableProducts,
			Version:   3,
			UpdatedAt: transport.payload.SyncedAt.Add(-time.Minute),
			Payload:   map[string]interface{}{"sku": "SKU-001", "name": "Espresso"},
		},
	}

	require.NoError(t, coord.Sync(ctx))

	rec, err := store.Record(ctx, domain.TableProducts, "srv-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(3), rec.Version)

	w, err := store.Watermark(ctx)
	require.NoError(t, err)
	assert.True(t, w.Equal(transport.payload.SyncedAt))
}

func TestCoordinator_ConflictedEntryIsAckedAndReported(t *testing.T) {
	coord, journal, _, transport := newTestCoordinator(t)
	ctx := context.Background()

	appendEntry(t, journal, "a")
	transport.results["a"] = domain.ChangeResult{
		LocalID:    "a",
		Status:     domain.StatusConflicted,
		ServerID:   "srv-a",
		ConflictID: "conflict-1",
	}

	var gotLocal, gotConflict string
	coord.OnConflict(func(localID, conflictID string) {
		gotLocal, gotConflict = localID, conflictID
	})

	require.NoError(t, coord.Sync(ctx))

	assert.Equal(t, "a", gotLocal)
	assert.Equal(t, "conflict-1", gotConflict)

	n, err := journal.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "conflicted entry must leave the journal")
}

func TestCoordinator_PermanentFailureIsAckedAndReported(t *testing.T) {
	coord, journal, _, transport := newTestCoordinator(t)
	ctx := context.Background()

	appendEntry(t, journal, "a")
	transport.results["a"] = domain.ChangeResult{
		LocalID: "a",
		Status:  domain.StatusFailed,
		Error:   &domain.ChangeError{Kind: domain.ErrorKindUniqueViolation, Field: "sku"},
	}

	var failed string
	var failedKind domain.ErrorKind
	coord.OnPermanentFailure(func(localID string, cerr *domain.ChangeError) {
		failed = localID
		failedKind = cerr.Kind
	})

	require.NoError(t, coord.Sync(ctx))

	assert.Equal(t, "a", failed)
	assert.Equal(t, domain.ErrorKindUniqueViolation, failedKind)

	n, err := journal.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCoordinator_RetryableFailureStaysQueued(t *testing.T) {
	coord, journal, _, transport := newTestCoordinator(t)
	ctx := context.Background()

	appendEntry(t, journal, "a")
	appendEntry(t, journal, "b")
	transport.results["a"] = domain.ChangeResult{
		LocalID: "a",
		Status:  domain.StatusFailed,
		Error:   &domain.ChangeError{Kind: domain.ErrorKindStorageUnavailable},
	}

	require.NoError(t, coord.Sync(ctx))

	n, err := journal.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "retryable entry stays queued")

	// With the backoff pending, nothing is ready and the next cycle pushes
	// nothing.
	require.NoError(t, coord.Sync(ctx))
	assert.Len(t, transport.pushes, 1)
}

func TestCoordinator_PushErrorAbortsCycle(t *testing.T) {
	coord, journal, _, transport := newTestCoordinator(t)
	ctx := context.Background()

	appendEntry(t, journal, "a")
	transport.pushErr = errors.New("network down")

	err := coord.Sync(ctx)
	require.Error(t, err)

	n, jerr := journal.Pending(ctx)
	require.NoError(t, jerr)
	assert.Equal(t, 1, n, "entry survives a failed push")
	assert.Zero(t, transport.pullCnt, "pull must not run after a failed push")
}

func TestCoordinator_MismatchedResultsAbortCycle(t *testing.T) {
	coord, journal, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	appendEntry(t, journal, "a")
	coord.transport = &truncatingTransport{}

	err := coord.Sync(ctx)
	require.Error(t, err)

	n, jerr := journal.Pending(ctx)
	require.NoError(t, jerr)
	assert.Equal(t, 1, n)
}

type truncatingTransport struct{}

func (truncatingTransport) Push(ctx context.Context, entries []domain.ChangeEntry) (*domain.PushResponse, error) {
	return &domain.PushResponse{}, nil
}

func (truncatingTransport) Pull(ctx context.Context, since time.Time, limit int) (*domain.PullPayload, error) {
	return &domain.PullPayload{Tables: map[domain.Table][]*domain.Record{}}, nil
}

func TestCoordinator_TriggerCoalesces(t *testing.T) {
	coord, _, _, _ := newTestCoordinator(t)

	coord.Trigger()
	coord.Trigger()
	coord.Trigger()

	select {
	case <-coord.trigger:
	default:
		t.Fatal("trigger channel empty after Trigger()")
	}
	select {
	case <-coord.trigger:
		t.Fatal("triggers did not coalesce into one")
	default:
	}
}
