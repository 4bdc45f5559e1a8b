package service

import (
	"context"
	"testing"
	"time"

	"tillsync-server/internal/domain"
)

func seedRecord(t *testing.T, records *mockRecordRepository, storeID string, table domain.Table, serverID string, updatedAt time.Time, tombstone bool) {
	t.Helper()
	err := records.Insert(context.Background(), &domain.Record{
		ServerID:  serverID,
		Table:     table,
		StoreID:   storeID,
		Version:   1,
		UpdatedAt: updatedAt,
		Tombstone: tombstone,
		Payload:   map[string]interface{}{"name": serverID},
	})
	if err != nil {
		t.Fatalf("failed to seed record: %v", err)
	}
}

func TestPullService_Changes(t *testing.T) {
	records := newMockRecordRepository()
	svc := NewPullService(records, 100)
	scope := testScope()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedRecord(t, records, scope.StoreID, domain.TableProducts, "p-1", base.Add(1*time.Minute), false)
	seedRecord(t, records, scope.StoreID, domain.TableProducts, "p-2", base.Add(2*time.Minute), true)
	seedRecord(t, records, scope.StoreID, domain.TableSales, "s-1", base.Add(3*time.Minute), false)
	seedRecord(t, records, "other-store", domain.TableProducts, "p-9", base.Add(4*time.Minute), false)

	payload, err := svc.Changes(context.Background(), scope, domain.PullOptions{Since: base})
	if err != nil {
		t.Fatalf("Changes() error = %v", err)
	}

	products := payload.Tables[domain.TableProducts]
	if len(products) != 2 {
		t.Fatalf("products = %d records, want 2", len(products))
	}
	if !products[0].UpdatedAt.Before(products[1].UpdatedAt) {
		t.Error("products not in ascending updated_at order")
	}
	if !products[1].Tombstone {
		t.Error("tombstoned record missing from pull")
	}

	if len(payload.Tables[domain.TableSales]) != 1 {
		t.Errorf("sales = %d records, want 1", len(payload.Tables[domain.TableSales]))
	}

	// Empty tables are omitted entirely.
	if _, ok := payload.Tables[domain.TableCustomers]; ok {
		t.Error("empty table present in payload")
	}

	for _, recs := range payload.Tables {
		for _, rec := range recs {
			if rec.StoreID != scope.StoreID {
				t.Errorf("pull leaked record from store %s", rec.StoreID)
			}
		}
	}
}

func TestPullService_WatermarkSkipsNothing(t *testing.T) {
	records := newMockRecordRepository()
	svc := NewPullService(records, 100)
	scope := testScope()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedRecord(t, records, scope.StoreID, domain.TableProducts, "p-1", base.Add(time.Minute), false)

	payload, err := svc.Changes(context.Background(), scope, domain.PullOptions{Since: base.Add(time.Minute)})
	if err != nil {
		t.Fatalf("Changes() error = %v", err)
	}
	if len(payload.Tables) != 0 {
		t.Error("record at exactly the watermark was re-sent")
	}
}

func TestPullService_TruncationRewindsSyncedAt(t *testing.T) {
	records := newMockRecordRepository()
	svc := NewPullService(records, 100)
	scope := testScope()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedRecord(t, records, scope.StoreID, domain.TableProducts, string(rune('a'+i)), base.Add(time.Duration(i+1)*time.Minute), false)
	}

	payload, err := svc.Changes(context.Background(), scope, domain.PullOptions{Since: base, Limit: 3})
	if err != nil {
		t.Fatalf("Changes() error = %v", err)
	}

	products := payload.Tables[domain.TableProducts]
	if len(products) != 3 {
		t.Fatalf("products = %d records, want 3", len(products))
	}

	want := base.Add(3 * time.Minute)
	if !payload.SyncedAt.Equal(want) {
		t.Errorf("SyncedAt = %v, want %v (last included updated_at)", payload.SyncedAt, want)
	}

	// The next pull from that watermark resumes without a gap.
	next, err := svc.Changes(context.Background(), scope, domain.PullOptions{Since: payload.SyncedAt, Limit: 3})
	if err != nil {
		t.Fatalf("Changes() error = %v", err)
	}
	if len(next.Tables[domain.TableProducts]) != 2 {
		t.Errorf("resumed pull = %d records, want 2", len(next.Tables[domain.TableProducts]))
	}
}

func TestPullService_UntruncatedStampsRequestTime(t *testing.T) {
	records := newMockRecordRepository()
	svc := NewPullService(records, 100)
	scope := testScope()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	seedRecord(t, records, scope.StoreID, domain.TableProducts, "p-1", now.Add(-time.Hour), false)

	payload, err := svc.Changes(context.Background(), scope, domain.PullOptions{})
	if err != nil {
		t.Fatalf("Changes() error = %v", err)
	}
	if !payload.SyncedAt.Equal(now) {
		t.Errorf("SyncedAt = %v, want request time %v", payload.SyncedAt, now)
	}
}
