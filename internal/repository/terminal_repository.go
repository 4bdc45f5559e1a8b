package repository

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tillsync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type TerminalRepository interface {
	Create(ctx context.Context, terminal *domain.Terminal) error
	Get(ctx context.Context, id string) (*domain.Terminal, error)
	ListByStore(ctx context.Context, storeID string) ([]*domain.Terminal, error)
	Revoke(ctx context.Context, id string) error
	TouchLastSeen(ctx context.Context, id string) error
}

type terminalRepository struct {
	client *kivik.Client
	dbName string
}

func NewTerminalRepository(client *kivik.Client, dbName string) TerminalRepository {
	return &terminalRepository{
		client: client,
		dbName: dbName,
	}
}

type terminalDoc struct {
	DocID      string    `json:"_id"`
	Rev        string    `json:"_rev,omitempty"`
	Kind       string    `json:"kind"`
	ID         string    `json:"id"`
	StoreID    string    `json:"store_id"`
	Name       string    `json:"name"`
	TermKind   string    `json:"terminal_kind"`
	AppVersion string    `json:"app_version"`
	LastSeen   time.Time `json:"last_seen"`
	CreatedAt  time.Time `json:"created_at"`
	IsRevoked  bool      `json:"is_revoked"`
}

func terminalDocID(id string) string {
	return fmt.Sprintf("terminal:%s", id)
}

func (d *terminalDoc) toTerminal() *domain.Terminal {
	return &domain.Terminal{
		ID:         d.ID,
		StoreID:    d.StoreID,
		Name:       d.Name,
		Kind:       d.TermKind,
		AppVersion: d.AppVersion,
		LastSeen:   d.LastSeen,
		CreatedAt:  d.CreatedAt,
		IsRevoked:  d.IsRevoked,
	}
}

func (r *terminalRepository) Create(ctx context.Context, terminal *domain.Terminal) error {
	db := r.client.DB(r.dbName)

	doc := terminalDoc{
		DocID:      terminalDocID(terminal.ID),
		Kind:       "terminal",
		ID:         terminal.ID,
		StoreID:    terminal.StoreID,
		Name:       terminal.Name,
		TermKind:   terminal.Kind,
		AppVersion: terminal.AppVersion,
		LastSeen:   terminal.LastSeen,
		CreatedAt:  terminal.CreatedAt,
		IsRevoked:  terminal.IsRevoked,
	}

	if _, err := db.Put(ctx, doc.DocID, doc); err != nil {
		return fmt.Errorf("failed to create terminal: %w", err)
	}

	return nil
}

func (r *terminalRepository) get(ctx context.Context, id string) (*terminalDoc, error) {
	db := r.client.DB(r.dbName)

	row := db.Get(ctx, terminalDocID(id))

	var doc terminalDoc
	if err := row.ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get terminal: %w", err)
	}

	return &doc, nil
}

func (r *terminalRepository) Get(ctx context.Context, id string) (*domain.Terminal, error) {
	doc, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.toTerminal(), nil
}

func (r *terminalRepository) ListByStore(ctx context.Context, storeID string) ([]*domain.Terminal, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"kind":     "terminal",
			"store_id": storeID,
		},
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list terminals: %w", err)
	}
	defer rows.Close()

	var terminals []*domain.Terminal
	for rows.Next() {
		var doc terminalDoc
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		terminals = append(terminals, doc.toTerminal())
	}

	return terminals, nil
}

func (r *terminalRepository) Revoke(ctx context.Context, id string) error {
	doc, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	doc.IsRevoked = true

	db := r.client.DB(r.dbName)
	if _, err := db.Put(ctx, doc.DocID, doc); err != nil {
		return fmt.Errorf("failed to revoke terminal: %w", err)
	}

	return nil
}

func (r *terminalRepository) TouchLastSeen(ctx context.Context, id string) error {
	doc, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	doc.LastSeen = time.Now().UTC()

	db := r.client.DB(r.dbName)
	if _, err := db.Put(ctx, doc.DocID, doc); err != nil {
		return fmt.Errorf("failed to update terminal: %w", err)
	}

	return nil
}
