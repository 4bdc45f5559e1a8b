package domain

import "time"

// Record is the unit of synchronization: one document in the authoritative
// store. Payload is table-specific and opaque to the core.
type Record struct {
	ServerID  string                 `json:"server_id"`
	LocalID   string                 `json:"local_id,omitempty"`
	Table     Table                  `json:"table"`
	StoreID   string                 `json:"store_id"`
	Version   int64                  `json:"version"`
	UpdatedAt time.Time              `json:"updated_at"`
	Tombstone bool                   `json:"tombstone"`
	Payload   map[string]interface{} `json:"payload"`
}
