package client

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tillsync-server/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS change_journal (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	local_id        TEXT NOT NULL,
	tbl             TEXT NOT NULL,
	action          TEXT NOT NULL,
	data            TEXT NOT NULL,
	attempts        INTEGER NOT NULL DEFAULT 0,
	next_attempt_at TEXT NOT NULL,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_journal_ready ON change_journal(next_attempt_at, seq);
`

// Journal is the durable outbound change queue of a terminal. Entries are
// appended as local mutations happen and removed once the server has given a
// final answer for them.
type Journal struct {
	db *sql.DB
}

func NewJournal(db *sql.DB) (*Journal, error) {
	if _, err := db.Exec(journalSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Append records a local mutation at the tail of the queue.
func (j *Journal) Append(ctx context.Context, entry *domain.ChangeEntry) error {
	data, err := json.Marshal(entry.Data)
	if err != nil {
		return fmt.Errorf("failed to encode change data: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO change_journal (local_id, tbl, action, data, attempts, next_attempt_at, created_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		entry.LocalID, entry.Table, entry.Action, string(data), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// Ready returns up to limit entries whose backoff window has elapsed, oldest
// first. The full queue order is preserved: an entry still backing off also
// blocks everything queued behind it, so dependent changes never overtake it.
func (j *Journal) Ready(ctx context.Context, limit int) ([]domain.ChangeEntry, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, local_id, tbl, action, data, attempts, created_at
		 FROM change_journal
		 WHERE seq < COALESCE(
		     (SELECT MIN(seq) FROM change_journal WHERE next_attempt_at > ?),
		     (SELECT COALESCE(MAX(seq), 0) + 1 FROM change_journal))
		 ORDER BY seq ASC
		 LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	defer rows.Close()

	var entries []domain.ChangeEntry
	for rows.Next() {
		var (
			entry     domain.ChangeEntry
			seq       int64
			data      string
			createdAt string
		)
		if err := rows.Scan(&seq, &entry.LocalID, &entry.Table, &entry.Action, &data, &entry.Attempts, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &entry.Data); err != nil {
			return nil, fmt.Errorf("failed to decode change data: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			entry.CreatedAt = t
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Ack removes an entry the server answered with a final status.
func (j *Journal) Ack(ctx context.Context, localID string) error {
	_, err := j.db.ExecContext(ctx,
		`DELETE FROM change_journal WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to ack journal entry: %w", err)
	}
	return nil
}

// Defer keeps a retryably-failed entry queued and pushes its next attempt out
// with exponential backoff, doubling from base up to max.
func (j *Journal) Defer(ctx context.Context, localID string, base, max time.Duration) error {
	var attempts int
	err := j.db.QueryRowContext(ctx,
		`SELECT attempts FROM change_journal WHERE local_id = ?`, localID).Scan(&attempts)
	if err != nil {
		return fmt.Errorf("failed to load journal entry: %w", err)
	}

	delay := base
	for i := 0; i < attempts && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}

	next := time.Now().UTC().Add(delay).Format(time.RFC3339Nano)
	_, err = j.db.ExecContext(ctx,
		`UPDATE change_journal SET attempts = attempts + 1, next_attempt_at = ? WHERE local_id = ?`,
		next, localID)
	if err != nil {
		return fmt.Errorf("failed to defer journal entry: %w", err)
	}
	return nil
}

// Pending reports how many entries are still queued, regardless of backoff.
func (j *Journal) Pending(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM change_journal`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count journal entries: %w", err)
	}
	return n, nil
}
