package repository

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tillsync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

// ReceiptRepository remembers the outcome of every applied change entry keyed
// by (storeId, localId), so a replayed batch gets its original results back
// instead of being applied twice.
type ReceiptRepository interface {
	Find(ctx context.Context, storeID, localID string) (*domain.ChangeResult, error)
	Save(ctx context.Context, storeID, localID string, result *domain.ChangeResult, ttl time.Duration) error
	Sweep(ctx context.Context) (int, error)
}

type receiptRepository struct {
	client *kivik.Client
	dbName string
}

func NewReceiptRepository(client *kivik.Client, dbName string) ReceiptRepository {
	return &receiptRepository{
		client: client,
		dbName: dbName,
	}
}

type receiptDoc struct {
	DocID     string              `json:"_id"`
	Rev       string              `json:"_rev,omitempty"`
	Kind      string              `json:"kind"`
	StoreID   string              `json:"store_id"`
	LocalID   string              `json:"local_id"`
	Result    domain.ChangeResult `json:"result"`
	CreatedAt time.Time           `json:"created_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

func receiptDocID(storeID, localID string) string {
	return fmt.Sprintf("receipt:%s:%s", storeID, localID)
}

func (r *receiptRepository) Find(ctx context.Context, storeID, localID string) (*domain.ChangeResult, error) {
	db := r.client.DB(r.dbName)

	row := db.Get(ctx, receiptDocID(storeID, localID))

	var doc receiptDoc
	if err := row.ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load receipt: %w", err)
	}

	if time.Now().After(doc.ExpiresAt) {
		return nil, ErrNotFound
	}

	result := doc.Result
	return &result, nil
}

func (r *receiptRepository) Save(ctx context.Context, storeID, localID string, result *domain.ChangeResult, ttl time.Duration) error {
	db := r.client.DB(r.dbName)

	now := time.Now().UTC()
	doc := &receiptDoc{
		DocID:     receiptDocID(storeID, localID),
		Kind:      "receipt",
		StoreID:   storeID,
		LocalID:   localID,
		Result:    *result,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if _, err := db.Put(ctx, doc.DocID, doc); err != nil {
		// A concurrent handler already recorded this entry; its receipt wins.
		if kivik.HTTPStatus(err) == http.StatusConflict {
			return ErrCASMismatch
		}
		return fmt.Errorf("failed to save receipt: %w", err)
	}

	return nil
}

// Sweep deletes receipts past their expiry. Best-effort maintenance; a
// failed delete is retried on the next sweep.
func (r *receiptRepository) Sweep(ctx context.Context) (int, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"kind": "receipt",
			"expires_at": map[string]interface{}{
				"$lt": time.Now().UTC().Format(time.RFC3339Nano),
			},
		},
		"limit": 1000,
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to query expired receipts: %w", err)
	}
	defer rows.Close()

	type expired struct {
		id  string
		rev string
	}
	var docs []expired
	for rows.Next() {
		var doc receiptDoc
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		docs = append(docs, expired{id: doc.DocID, rev: doc.Rev})
	}

	deleted := 0
	for _, d := range docs {
		if _, err := db.Delete(ctx, d.id, d.rev); err != nil {
			continue
		}
		deleted++
	}

	return deleted, nil
}
