package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPullPayload_WireShape(t *testing.T) {
	syncedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := &PullPayload{
		Tables: map[Table][]*Record{
			TableProducts: {
				{
					ServerID:  "srv-1",
					Table:     TableProducts,
					StoreID:   "store-1",
					Version:   2,
					UpdatedAt: syncedAt.Add(-time.Minute),
					Payload:   map[string]interface{}{"sku": "SKU-001"},
				},
			},
		},
		SyncedAt: syncedAt,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var wire map[string]json.RawMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	// Tables sit at the top level next to synced_at, no wrapper object.
	if _, ok := wire["products"]; !ok {
		t.Error("products missing from top level")
	}
	if _, ok := wire["synced_at"]; !ok {
		t.Error("synced_at missing from top level")
	}
	if _, ok := wire["tables"]; ok {
		t.Error("unexpected tables wrapper on the wire")
	}

	var decoded PullPayload
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("round-trip Unmarshal() error = %v", err)
	}
	if !decoded.SyncedAt.Equal(syncedAt) {
		t.Errorf("round-trip synced_at = %v, want %v", decoded.SyncedAt, syncedAt)
	}
	recs := decoded.Tables[TableProducts]
	if len(recs) != 1 || recs[0].ServerID != "srv-1" {
		t.Fatalf("round-trip products = %+v", recs)
	}
}

func TestPullPayload_UnmarshalIgnoresUnknownKeys(t *testing.T) {
	raw := `{"products":[],"wishlists":[{"id":1}],"synced_at":"2026-03-01T12:00:00Z"}`

	var payload PullPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := payload.Tables["wishlists"]; ok {
		t.Error("unknown table key was not ignored")
	}
}
