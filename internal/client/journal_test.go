package client

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"tillsync-server/internal/domain"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	journal, err := NewJournal(openTestDB(t))
	require.NoError(t, err)
	return journal
}

func appendEntry(t *testing.T, journal *Journal, localID string) {
	t.Helper()
	err := journal.Append(context.Background(), &domain.ChangeEntry{
		LocalID: localID,
		Table:   "products",
		Action:  domain.ActionCreate,
		Data:    map[string]interface{}{"sku": "SKU-" + localID, "name": localID},
	})
	require.NoError(t, err)
}

func TestJournal_AppendAndReady(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	appendEntry(t, journal, "a")
	appendEntry(t, journal, "b")
	appendEntry(t, journal, "c")

	entries, err := journal.Ready(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "a", entries[0].LocalID)
	assert.Equal(t, "b", entries[1].LocalID)
	assert.Equal(t, "c", entries[2].LocalID)
	assert.Equal(t, "SKU-a", entries[0].Data["sku"])
}

func TestJournal_ReadyHonorsLimit(t *testing.T) {
	journal := newTestJournal(t)

	for _, id := range []string{"a", "b", "c", "d"} {
		appendEntry(t, journal, id)
	}

	entries, err := journal.Ready(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].LocalID)
	assert.Equal(t, "b", entries[1].LocalID)
}

func TestJournal_AckRemovesEntry(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	appendEntry(t, journal, "a")
	appendEntry(t, journal, "b")

	require.NoError(t, journal.Ack(ctx, "a"))

	entries, err := journal.Ready(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].LocalID)

	n, err := journal.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestJournal_DeferBlocksQueueBehindIt(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	appendEntry(t, journal, "a")
	appendEntry(t, journal, "b")

	require.NoError(t, journal.Defer(ctx, "a", time.Minute, 5*time.Minute))

	// "a" is backing off, and "b" must not overtake it.
	entries, err := journal.Ready(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	n, err := journal.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestJournal_DeferBacksOffExponentially(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	appendEntry(t, journal, "a")

	for i := 0; i < 3; i++ {
		require.NoError(t, journal.Defer(ctx, "a", time.Millisecond, 5*time.Minute))
	}

	var attempts int
	var next string
	err := journal.db.QueryRowContext(ctx,
		`SELECT attempts, next_attempt_at FROM change_journal WHERE local_id = ?`, "a").
		Scan(&attempts, &next)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	nextAt, err := time.Parse(time.RFC3339Nano, next)
	require.NoError(t, err)
	assert.True(t, nextAt.After(time.Now().UTC().Add(-time.Second)))
}

func TestJournal_DeferredEntryBecomesReadyAgain(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	appendEntry(t, journal, "a")
	require.NoError(t, journal.Defer(ctx, "a", time.Millisecond, time.Millisecond))

	time.Sleep(10 * time.Millisecond)

	entries, err := journal.Ready(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].LocalID)
	assert.Equal(t, 1, entries[0].Attempts)
}

func TestJournal_SurvivesReopen(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	journal, err := NewJournal(db)
	require.NoError(t, err)
	appendEntry(t, journal, "a")

	// A second instance over the same handle sees the queued entry.
	reopened, err := NewJournal(db)
	require.NoError(t, err)

	entries, err := reopened.Ready(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].LocalID)
}
