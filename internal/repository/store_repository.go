package repository

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tillsync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type StoreRepository interface {
	Create(ctx context.Context, store *domain.Store) error
	Get(ctx context.Context, id string) (*domain.Store, error)
}

type storeRepository struct {
	client *kivik.Client
	dbName string
}

func NewStoreRepository(client *kivik.Client, dbName string) StoreRepository {
	return &storeRepository{
		client: client,
		dbName: dbName,
	}
}

type storeDoc struct {
	DocID          string    `json:"_id"`
	Rev            string    `json:"_rev,omitempty"`
	Kind           string    `json:"kind"`
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Name           string    `json:"name"`
	AccessCode     string    `json:"access_code"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (r *storeRepository) Create(ctx context.Context, store *domain.Store) error {
	db := r.client.DB(r.dbName)

	doc := storeDoc{
		DocID:          fmt.Sprintf("store:%s", store.ID),
		Kind:           "store",
		ID:             store.ID,
		OrganizationID: store.OrganizationID,
		Name:           store.Name,
		AccessCode:     store.AccessCode,
		CreatedAt:      store.CreatedAt,
		UpdatedAt:      store.UpdatedAt,
	}

	if _, err := db.Put(ctx, doc.DocID, doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusConflict {
			return ErrUniqueTaken
		}
		return fmt.Errorf("failed to create store: %w", err)
	}

	return nil
}

func (r *storeRepository) Get(ctx context.Context, id string) (*domain.Store, error) {
	db := r.client.DB(r.dbName)

	row := db.Get(ctx, fmt.Sprintf("store:%s", id))

	var doc storeDoc
	if err := row.ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get store: %w", err)
	}

	return &domain.Store{
		ID:             doc.ID,
		OrganizationID: doc.OrganizationID,
		Name:           doc.Name,
		AccessCode:     doc.AccessCode,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}, nil
}
