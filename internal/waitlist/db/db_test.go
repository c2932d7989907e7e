package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"github.com/Ishaan29/terpspark-backend/internal/models"
	"github.com/Ishaan29/terpspark-backend/internal/waitlist/db"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = bunDB.NewCreateTable().Model((*models.WaitlistEntry)(nil)).Exec(context.Background())
	if err != nil {
		t.Fatalf("Failed to create waitlist_entries table: %v", err)
	}

	return &db.DB{Bun: bunDB}, bunDB
}

// join appends a user at the next free position, the way the service does it
// under the event lock.
func join(t *testing.T, store *db.DB, eventID, userID string) *models.WaitlistEntry {
	ctx := context.Background()
	position, err := store.NextPosition(ctx, eventID)
	require.NoError(t, err)

	entry := &models.WaitlistEntry{
		ID:                     uuid.New().String(),
		UserID:                 userID,
		EventID:                eventID,
		Position:               position,
		NotificationPreference: models.NotifyByEmail,
		JoinedAt:               time.Now(),
	}
	require.NoError(t, store.Create(ctx, entry))
	return entry
}

func positions(t *testing.T, store *db.DB, eventID string) map[string]int {
	entries, err := store.ListByEvent(context.Background(), eventID)
	require.NoError(t, err)

	out := make(map[string]int, len(entries))
	for _, e := range entries {
		out[e.UserID] = e.Position
	}
	return out
}

func TestNextPositionStartsAtOne(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()

	position, err := store.NextPosition(context.Background(), "event1")
	assert.NoError(t, err)
	assert.Equal(t, 1, position)
}

func TestJoinAssignsDensePositions(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()

	a := join(t, store, "event1", "alice")
	b := join(t, store, "event1", "bob")
	c := join(t, store, "event1", "carol")

	assert.Equal(t, 1, a.Position)
	assert.Equal(t, 2, b.Position)
	assert.Equal(t, 3, c.Position)

	// A second event's queue numbers independently.
	other := join(t, store, "event2", "dave")
	assert.Equal(t, 1, other.Position)
}

func TestRemoveHeadRenumbersEveryoneBehind(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	head := join(t, store, "event1", "alice")
	join(t, store, "event1", "bob")
	join(t, store, "event1", "carol")

	require.NoError(t, store.Remove(ctx, head))

	got := positions(t, store, "event1")
	assert.Equal(t, map[string]int{"bob": 1, "carol": 2}, got)
}

func TestRemoveMiddleClosesTheGap(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	join(t, store, "event1", "alice")
	middle := join(t, store, "event1", "bob")
	join(t, store, "event1", "carol")
	join(t, store, "event1", "dave")

	require.NoError(t, store.Remove(ctx, middle))

	got := positions(t, store, "event1")
	assert.Equal(t, map[string]int{"alice": 1, "carol": 2, "dave": 3}, got)
}

func TestRemoveDoesNotTouchOtherEvents(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	target := join(t, store, "event1", "alice")
	join(t, store, "event1", "bob")
	join(t, store, "event2", "carol")
	join(t, store, "event2", "dave")

	require.NoError(t, store.Remove(ctx, target))

	got := positions(t, store, "event2")
	assert.Equal(t, map[string]int{"carol": 1, "dave": 2}, got)
}

func TestRemoveMissingEntryIsNoop(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	join(t, store, "event1", "alice")
	join(t, store, "event1", "bob")

	ghost := &models.WaitlistEntry{
		ID:       uuid.New().String(),
		EventID:  "event1",
		Position: 1,
	}
	require.NoError(t, store.Remove(ctx, ghost))

	// Nobody was renumbered.
	got := positions(t, store, "event1")
	assert.Equal(t, map[string]int{"alice": 1, "bob": 2}, got)
}

func TestHeadOfLine(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	head, err := store.HeadOfLine(ctx, "event1")
	assert.NoError(t, err)
	assert.Nil(t, head, "Empty waitlist has no head")

	join(t, store, "event1", "alice")
	join(t, store, "event1", "bob")

	head, err = store.HeadOfLine(ctx, "event1")
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, "alice", head.UserID)
	assert.Equal(t, 1, head.Position)

	// Removing the head surfaces the next user.
	require.NoError(t, store.Remove(ctx, head))

	head, err = store.HeadOfLine(ctx, "event1")
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, "bob", head.UserID)
	assert.Equal(t, 1, head.Position)
}

func TestGetByUserAndEvent(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	join(t, store, "event1", "alice")

	entry, err := store.GetByUserAndEvent(ctx, "alice", "event1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 1, entry.Position)

	entry, err = store.GetByUserAndEvent(ctx, "alice", "event2")
	assert.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCountByEvent(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	join(t, store, "event1", "alice")
	join(t, store, "event1", "bob")
	join(t, store, "event2", "carol")

	count, err := store.CountByEvent(ctx, "event1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestListByUser(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	join(t, store, "event1", "alice")
	join(t, store, "event2", "alice")
	join(t, store, "event1", "bob")

	entries, err := store.ListByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
