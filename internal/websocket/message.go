package websocket

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	TypeRecordsChanged MessageType = "records_changed"
	TypeConflict       MessageType = "conflict"
	TypePing           MessageType = "ping"
	TypePong           MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// RecordsChangedPayload tells idle terminals of a store that a sibling pushed
// changes and a pull is worth scheduling.
type RecordsChangedPayload struct {
	Tables     []string `json:"tables"`
	TerminalID string   `json:"terminal_id"`
}

// ConflictPayload notifies the losing terminal that one of its entries landed
// in the conflict registry.
type ConflictPayload struct {
	ConflictID string `json:"conflict_id"`
	Table      string `json:"table"`
	ServerID   string `json:"server_id"`
	LocalID    string `json:"local_id"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
