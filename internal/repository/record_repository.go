package repository

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tillsync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

// RecordRepository is the authoritative record store. Writes go through a
// revision-based compare-and-set: Get returns the revision that Update must
// present, and a concurrent writer surfaces as ErrCASMismatch.
type RecordRepository interface {
	Insert(ctx context.Context, rec *domain.Record) error
	Get(ctx context.Context, scope domain.Scope, table domain.Table, serverID string) (*domain.Record, string, error)
	Update(ctx context.Context, rec *domain.Record, rev string) error
	ChangedSince(ctx context.Context, scope domain.Scope, table domain.Table, since time.Time, limit int) ([]*domain.Record, error)
	ReserveUnique(ctx context.Context, scope domain.Scope, table domain.Table, field, value, ownerLocalID string) error
}

// recordTimeLayout pads the fractional second to a fixed width so that the
// lexical comparison Mango applies to updated_at matches chronological order.
const recordTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type recordRepository struct {
	client *kivik.Client
	dbName string
}

func NewRecordRepository(client *kivik.Client, dbName string) RecordRepository {
	return &recordRepository{
		client: client,
		dbName: dbName,
	}
}

type recordDoc struct {
	DocID     string                 `json:"_id"`
	Rev       string                 `json:"_rev,omitempty"`
	Kind      string                 `json:"kind"`
	ServerID  string                 `json:"server_id"`
	LocalID   string                 `json:"local_id,omitempty"`
	Table     string                 `json:"table"`
	StoreID   string                 `json:"store_id"`
	Version   int64                  `json:"version"`
	UpdatedAt string                 `json:"updated_at"`
	Tombstone bool                   `json:"tombstone"`
	Payload   map[string]interface{} `json:"payload"`
}

func recordDocID(table domain.Table, serverID string) string {
	return fmt.Sprintf("record:%s:%s", table, serverID)
}

func toRecordDoc(rec *domain.Record, rev string) *recordDoc {
	return &recordDoc{
		DocID:     recordDocID(rec.Table, rec.ServerID),
		Rev:       rev,
		Kind:      "record",
		ServerID:  rec.ServerID,
		LocalID:   rec.LocalID,
		Table:     string(rec.Table),
		StoreID:   rec.StoreID,
		Version:   rec.Version,
		UpdatedAt: rec.UpdatedAt.UTC().Format(recordTimeLayout),
		Tombstone: rec.Tombstone,
		Payload:   rec.Payload,
	}
}

func (d *recordDoc) toRecord() *domain.Record {
	updatedAt, _ := time.Parse(time.RFC3339Nano, d.UpdatedAt)
	return &domain.Record{
		ServerID:  d.ServerID,
		LocalID:   d.LocalID,
		Table:     domain.Table(d.Table),
		StoreID:   d.StoreID,
		Version:   d.Version,
		UpdatedAt: updatedAt,
		Tombstone: d.Tombstone,
		Payload:   d.Payload,
	}
}

func (r *recordRepository) Insert(ctx context.Context, rec *domain.Record) error {
	db := r.client.DB(r.dbName)

	doc := toRecordDoc(rec, "")
	if _, err := db.Put(ctx, doc.DocID, doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusConflict {
			return ErrCASMismatch
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}

	return nil
}

func (r *recordRepository) Get(ctx context.Context, scope domain.Scope, table domain.Table, serverID string) (*domain.Record, string, error) {
	db := r.client.DB(r.dbName)

	row := db.Get(ctx, recordDocID(table, serverID))

	var doc recordDoc
	if err := row.ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to load record: %w", err)
	}

	// Wrong-store lookups are indistinguishable from missing records.
	if doc.StoreID != scope.StoreID {
		return nil, "", ErrNotFound
	}

	return doc.toRecord(), doc.Rev, nil
}

func (r *recordRepository) Update(ctx context.Context, rec *domain.Record, rev string) error {
	db := r.client.DB(r.dbName)

	doc := toRecordDoc(rec, rev)
	if _, err := db.Put(ctx, doc.DocID, doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusConflict {
			return ErrCASMismatch
		}
		return fmt.Errorf("failed to update record: %w", err)
	}

	return nil
}

func (r *recordRepository) ChangedSince(ctx context.Context, scope domain.Scope, table domain.Table, since time.Time, limit int) ([]*domain.Record, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"kind":     "record",
			"store_id": scope.StoreID,
			"table":    string(table),
			"updated_at": map[string]interface{}{
				"$gt": since.UTC().Format(recordTimeLayout),
			},
		},
		// Sort fields must mirror the changed-records index definition.
		"sort": []map[string]string{
			{"kind": "asc"},
			{"store_id": "asc"},
			{"table": "asc"},
			{"updated_at": "asc"},
		},
		"limit": limit,
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query changed records: %w", err)
	}
	defer rows.Close()

	var records []*domain.Record
	for rows.Next() {
		var doc recordDoc
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		records = append(records, doc.toRecord())
	}

	return records, nil
}

// ReserveUnique claims a per-store unique value by inserting a reservation
// document whose id encodes the value. The reservation records the local id
// of the entry claiming it, so a retried create finds its own reservation
// instead of a violation. A reservation held by any other entry maps to
// ErrUniqueTaken.
func (r *recordRepository) ReserveUnique(ctx context.Context, scope domain.Scope, table domain.Table, field, value, ownerLocalID string) error {
	db := r.client.DB(r.dbName)

	docID := fmt.Sprintf("unique:%s:%s:%s:%s", scope.StoreID, table, field, value)
	doc := map[string]interface{}{
		"_id":            docID,
		"kind":           "unique",
		"store_id":       scope.StoreID,
		"table":          string(table),
		"field":          field,
		"owner_local_id": ownerLocalID,
		"created_at":     time.Now().UTC(),
	}

	if _, err := db.Put(ctx, docID, doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusConflict {
			var existing struct {
				OwnerLocalID string `json:"owner_local_id"`
			}
			if scanErr := db.Get(ctx, docID).ScanDoc(&existing); scanErr == nil && existing.OwnerLocalID == ownerLocalID {
				return nil
			}
			return ErrUniqueTaken
		}
		return fmt.Errorf("failed to reserve unique value: %w", err)
	}

	return nil
}
