package domain

import "time"

type ConflictStatus string

const (
	ConflictOpen           ConflictStatus = "open"
	ConflictResolvedServer ConflictStatus = "resolved-server"
	ConflictResolvedClient ConflictStatus = "resolved-client"
	ConflictMerged         ConflictStatus = "merged"
	ConflictRejected       ConflictStatus = "rejected"
)

// Terminal reports whether the status is immutable.
func (s ConflictStatus) Terminal() bool {
	return s != ConflictOpen
}

type ResolutionChoice string

const (
	ChoiceServer ResolutionChoice = "server"
	ChoiceClient ResolutionChoice = "client"
	ChoiceMerged ResolutionChoice = "merged"
)

// Conflict records one losing concurrent write: the client submitted
// BaseVersion but the server had already moved past it. It stays open until a
// resolution or rejection moves it to a terminal status.
type Conflict struct {
	ID            string                 `json:"id"`
	StoreID       string                 `json:"store_id"`
	Table         Table                  `json:"table"`
	ServerID      string                 `json:"server_id"`
	ClientLocalID string                 `json:"client_local_id"`
	BaseVersion   int64                  `json:"base_version"`
	ServerPayload map[string]interface{} `json:"server_payload"`
	ClientPayload map[string]interface{} `json:"client_payload"`
	Status        ConflictStatus         `json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
	ResolvedAt    *time.Time             `json:"resolved_at,omitempty"`
}

type ResolveConflictRequest struct {
	Choice        ResolutionChoice       `json:"choice" validate:"required,oneof=server client merged"`
	MergedPayload map[string]interface{} `json:"merged_payload,omitempty"`
}

// ConflictFilter narrows a conflict listing. Zero values mean no constraint.
type ConflictFilter struct {
	Table   Table
	Status  ConflictStatus
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}

type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
}

type ConflictList struct {
	Conflicts  []*Conflict `json:"conflicts"`
	Pagination Pagination  `json:"pagination"`
}
