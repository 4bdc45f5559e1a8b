package domain

import "time"

type ChangeAction string

const (
	ActionCreate ChangeAction = "create"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
)

// Reserved data keys. Update and delete entries carry the record identity
// inside Data; the applier strips these before merging the payload.
const (
	DataKeyServerID    = "server_id"
	DataKeyBaseVersion = "base_version"
)

// ChangeEntry is one proposed mutation. On the client it lives in the journal
// until it reaches a terminal outcome; on the wire it is an element of a push
// batch.
type ChangeEntry struct {
	LocalID   string                 `json:"local_id" validate:"required"`
	Table     string                 `json:"table" validate:"required"`
	Action    ChangeAction           `json:"action" validate:"required,oneof=create update delete"`
	Data      map[string]interface{} `json:"data"`
	Attempts  int                    `json:"attempts,omitempty"`
	CreatedAt time.Time              `json:"created_at,omitempty"`
}

type ChangeStatus string

const (
	StatusAccepted   ChangeStatus = "accepted"
	StatusConflicted ChangeStatus = "conflicted"
	StatusFailed     ChangeStatus = "failed"
)

type ErrorKind string

const (
	ErrorKindUnknownTable       ErrorKind = "unknown_table"
	ErrorKindMalformedPayload   ErrorKind = "malformed_payload"
	ErrorKindNotFound           ErrorKind = "not_found"
	ErrorKindGone               ErrorKind = "gone"
	ErrorKindUniqueViolation    ErrorKind = "unique_violation"
	ErrorKindUnauthorized       ErrorKind = "unauthorized"
	ErrorKindForbidden          ErrorKind = "forbidden"
	ErrorKindStorageUnavailable ErrorKind = "storage_unavailable"
	ErrorKindDeadlineExceeded   ErrorKind = "deadline_exceeded"
)

// Retryable reports whether the coordinator should keep the entry queued and
// try again, as opposed to acking it as rejected-final.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindStorageUnavailable, ErrorKindDeadlineExceeded:
		return true
	}
	return false
}

// ChangeError describes a failed entry. Field is set for unique_violation.
type ChangeError struct {
	Kind    ErrorKind `json:"kind"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message,omitempty"`
}

// ChangeResult is the per-entry outcome of a push, parallel to the batch.
type ChangeResult struct {
	LocalID    string       `json:"local_id"`
	Status     ChangeStatus `json:"status"`
	ServerID   string       `json:"server_id,omitempty"`
	Version    int64        `json:"version,omitempty"`
	ConflictID string       `json:"conflict_id,omitempty"`
	Error      *ChangeError `json:"error,omitempty"`
}

type PushRequest struct {
	Changes []ChangeEntry `json:"changes" validate:"required,min=1,dive"`
}

type PushResponse struct {
	Results []ChangeResult `json:"results"`
}
