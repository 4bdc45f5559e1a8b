package client

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tillsync-server/internal/domain"
)

const localStoreSchema = `
CREATE TABLE IF NOT EXISTS records (
	server_id  TEXT NOT NULL,
	tbl        TEXT NOT NULL,
	version    INTEGER NOT NULL,
	updated_at TEXT NOT NULL,
	payload    TEXT NOT NULL,
	PRIMARY KEY (tbl, server_id)
);
CREATE TABLE IF NOT EXISTS id_map (
	local_id  TEXT NOT NULL,
	tbl       TEXT NOT NULL,
	server_id TEXT NOT NULL,
	PRIMARY KEY (tbl, local_id)
);
CREATE TABLE IF NOT EXISTS sync_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const watermarkKey = "last_synced_at"

// LocalStore mirrors the server's records on the terminal and tracks the pull
// watermark. Swallowing a pulled tombstone deletes the local row.
type LocalStore struct {
	db *sql.DB
}

func NewLocalStore(db *sql.DB) (*LocalStore, error) {
	if _, err := db.Exec(localStoreSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize local store schema: %w", err)
	}
	return &LocalStore{db: db}, nil
}

// ApplyRecord upserts a pulled record, or removes the row when it carries a
// tombstone.
func (s *LocalStore) ApplyRecord(ctx context.Context, rec *domain.Record) error {
	if rec.Tombstone {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM records WHERE tbl = ? AND server_id = ?`,
			rec.Table, rec.ServerID)
		if err != nil {
			return fmt.Errorf("failed to delete local record: %w", err)
		}
		return nil
	}

	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode record payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (server_id, tbl, version, updated_at, payload)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(tbl, server_id) DO UPDATE SET
		     version = excluded.version,
		     updated_at = excluded.updated_at,
		     payload = excluded.payload`,
		rec.ServerID, rec.Table, rec.Version, rec.UpdatedAt.UTC().Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return fmt.Errorf("failed to upsert local record: %w", err)
	}
	return nil
}

// Record loads one mirrored row. Returns nil when absent.
func (s *LocalStore) Record(ctx context.Context, table domain.Table, serverID string) (*domain.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT server_id, tbl, version, updated_at, payload
		 FROM records WHERE tbl = ? AND server_id = ?`,
		table, serverID)

	var (
		rec       domain.Record
		updatedAt string
		payload   string
	)
	err := row.Scan(&rec.ServerID, &rec.Table, &rec.Version, &updatedAt, &payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load local record: %w", err)
	}

	if t, perr := time.Parse(time.RFC3339Nano, updatedAt); perr == nil {
		rec.UpdatedAt = t
	}
	if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode record payload: %w", err)
	}
	return &rec, nil
}

// MapLocalID remembers which server identity a provisional local id resolved
// to.
func (s *LocalStore) MapLocalID(ctx context.Context, table, localID, serverID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO id_map (local_id, tbl, server_id) VALUES (?, ?, ?)
		 ON CONFLICT(tbl, local_id) DO UPDATE SET server_id = excluded.server_id`,
		localID, table, serverID)
	if err != nil {
		return fmt.Errorf("failed to map local id: %w", err)
	}
	return nil
}

// ServerID resolves a provisional local id. Returns empty when unmapped.
func (s *LocalStore) ServerID(ctx context.Context, table, localID string) (string, error) {
	var serverID string
	err := s.db.QueryRowContext(ctx,
		`SELECT server_id FROM id_map WHERE tbl = ? AND local_id = ?`,
		table, localID).Scan(&serverID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve local id: %w", err)
	}
	return serverID, nil
}

// Watermark returns the last synced-at timestamp, zero when never synced.
func (s *LocalStore) Watermark(ctx context.Context) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM sync_state WHERE key = ?`, watermarkKey).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load watermark: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse watermark: %w", err)
	}
	return t, nil
}

// AdvanceWatermark persists the new watermark. It never moves backwards; a
// stale candidate is ignored.
func (s *LocalStore) AdvanceWatermark(ctx context.Context, t time.Time) error {
	current, err := s.Watermark(ctx)
	if err != nil {
		return err
	}
	if !t.After(current) {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sync_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		watermarkKey, t.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to advance watermark: %w", err)
	}
	return nil
}
