package domain

import "time"

// Store is one retail location, the tenant boundary of the sync core. The
// access code is what terminals present at login; only its hash is persisted.
type Store struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Name           string    `json:"name"`
	AccessCode     string    `json:"access_code,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type RegisterStoreRequest struct {
	Name           string `json:"name" validate:"required,min=1,max=100"`
	OrganizationID string `json:"organization_id"`
	AccessCode     string `json:"access_code" validate:"required,min=6"`
}

type StoreResponse struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
}
