package repository

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tillsync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type ConflictRepository interface {
	Create(ctx context.Context, conflict *domain.Conflict) error
	Get(ctx context.Context, scope domain.Scope, conflictID string) (*domain.Conflict, error)
	List(ctx context.Context, scope domain.Scope, filter domain.ConflictFilter) (*domain.ConflictList, error)
	Transition(ctx context.Context, scope domain.Scope, conflictID string, status domain.ConflictStatus) error
}

type conflictRepository struct {
	client *kivik.Client
	dbName string
}

func NewConflictRepository(client *kivik.Client, dbName string) ConflictRepository {
	return &conflictRepository{
		client: client,
		dbName: dbName,
	}
}

type conflictDoc struct {
	DocID         string                 `json:"_id"`
	Rev           string                 `json:"_rev,omitempty"`
	Kind          string                 `json:"kind"`
	ID            string                 `json:"id"`
	StoreID       string                 `json:"store_id"`
	Table         string                 `json:"table"`
	ServerID      string                 `json:"server_id"`
	ClientLocalID string                 `json:"client_local_id"`
	BaseVersion   int64                  `json:"base_version"`
	ServerPayload map[string]interface{} `json:"server_payload"`
	ClientPayload map[string]interface{} `json:"client_payload"`
	Status        string                 `json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
	ResolvedAt    *time.Time             `json:"resolved_at,omitempty"`
}

func conflictDocID(id string) string {
	return fmt.Sprintf("conflict:%s", id)
}

func toConflictDoc(c *domain.Conflict, rev string) *conflictDoc {
	return &conflictDoc{
		DocID:         conflictDocID(c.ID),
		Rev:           rev,
		Kind:          "conflict",
		ID:            c.ID,
		StoreID:       c.StoreID,
		Table:         string(c.Table),
		ServerID:      c.ServerID,
		ClientLocalID: c.ClientLocalID,
		BaseVersion:   c.BaseVersion,
		ServerPayload: c.ServerPayload,
		ClientPayload: c.ClientPayload,
		Status:        string(c.Status),
		CreatedAt:     c.CreatedAt,
		ResolvedAt:    c.ResolvedAt,
	}
}

func (d *conflictDoc) toConflict() *domain.Conflict {
	return &domain.Conflict{
		ID:            d.ID,
		StoreID:       d.StoreID,
		Table:         domain.Table(d.Table),
		ServerID:      d.ServerID,
		ClientLocalID: d.ClientLocalID,
		BaseVersion:   d.BaseVersion,
		ServerPayload: d.ServerPayload,
		ClientPayload: d.ClientPayload,
		Status:        domain.ConflictStatus(d.Status),
		CreatedAt:     d.CreatedAt,
		ResolvedAt:    d.ResolvedAt,
	}
}

func (r *conflictRepository) Create(ctx context.Context, conflict *domain.Conflict) error {
	db := r.client.DB(r.dbName)

	doc := toConflictDoc(conflict, "")
	if _, err := db.Put(ctx, doc.DocID, doc); err != nil {
		return fmt.Errorf("failed to create conflict: %w", err)
	}

	return nil
}

func (r *conflictRepository) get(ctx context.Context, scope domain.Scope, conflictID string) (*conflictDoc, error) {
	db := r.client.DB(r.dbName)

	row := db.Get(ctx, conflictDocID(conflictID))

	var doc conflictDoc
	if err := row.ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load conflict: %w", err)
	}

	if doc.StoreID != scope.StoreID {
		return nil, ErrNotFound
	}

	return &doc, nil
}

func (r *conflictRepository) Get(ctx context.Context, scope domain.Scope, conflictID string) (*domain.Conflict, error) {
	doc, err := r.get(ctx, scope, conflictID)
	if err != nil {
		return nil, err
	}
	return doc.toConflict(), nil
}

func (r *conflictRepository) List(ctx context.Context, scope domain.Scope, filter domain.ConflictFilter) (*domain.ConflictList, error) {
	db := r.client.DB(r.dbName)

	selector := map[string]interface{}{
		"kind":     "conflict",
		"store_id": scope.StoreID,
	}
	if filter.Table != "" {
		selector["table"] = string(filter.Table)
	}
	if filter.Status != "" {
		selector["status"] = string(filter.Status)
	}
	created := map[string]interface{}{}
	if !filter.From.IsZero() {
		created["$gte"] = filter.From.UTC().Format(time.RFC3339Nano)
	}
	if !filter.To.IsZero() {
		created["$lte"] = filter.To.UTC().Format(time.RFC3339Nano)
	}
	if len(created) > 0 {
		selector["created_at"] = created
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 50
	}

	query := map[string]interface{}{
		"selector": selector,
		"limit":    perPage,
		"skip":     (page - 1) * perPage,
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	conflicts := []*domain.Conflict{}
	for rows.Next() {
		var doc conflictDoc
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		conflicts = append(conflicts, doc.toConflict())
	}

	total, err := r.count(ctx, selector)
	if err != nil {
		return nil, err
	}

	return &domain.ConflictList{
		Conflicts: conflicts,
		Pagination: domain.Pagination{
			Page:    page,
			PerPage: perPage,
			Total:   total,
		},
	}, nil
}

func (r *conflictRepository) count(ctx context.Context, selector map[string]interface{}) (int, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": selector,
		"fields":   []string{"_id"},
		"limit":    100000,
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to count conflicts: %w", err)
	}
	defer rows.Close()

	total := 0
	for rows.Next() {
		total++
	}

	return total, nil
}

// Transition moves an open conflict to a terminal status. The revision check
// guards against two resolvers racing on the same conflict.
func (r *conflictRepository) Transition(ctx context.Context, scope domain.Scope, conflictID string, status domain.ConflictStatus) error {
	doc, err := r.get(ctx, scope, conflictID)
	if err != nil {
		return err
	}

	if domain.ConflictStatus(doc.Status).Terminal() {
		return ErrConflictTerminal
	}

	now := time.Now().UTC()
	doc.Status = string(status)
	doc.ResolvedAt = &now

	db := r.client.DB(r.dbName)
	if _, err := db.Put(ctx, doc.DocID, doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusConflict {
			return ErrCASMismatch
		}
		return fmt.Errorf("failed to transition conflict: %w", err)
	}

	return nil
}
