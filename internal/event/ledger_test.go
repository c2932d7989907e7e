package event_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"github.com/Ishaan29/terpspark-backend/internal/domain"
	"github.com/Ishaan29/terpspark-backend/internal/event"
	"github.com/Ishaan29/terpspark-backend/internal/models"
)

func setupLedger(t *testing.T) (*event.Ledger, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = bunDB.NewCreateTable().Model((*models.Event)(nil)).Exec(context.Background())
	if err != nil {
		t.Fatalf("Failed to create events table: %v", err)
	}

	return event.NewLedger(bunDB), bunDB
}

func insertEvent(t *testing.T, bunDB *bun.DB, id string, capacity, registered int) {
	e := models.Event{
		ID:              id,
		Title:           "Test Event",
		Status:          models.EventStatusPublished,
		Date:            time.Now().AddDate(0, 0, 7),
		Capacity:        capacity,
		RegisteredCount: registered,
		CreatedAt:       time.Now(),
	}
	_, err := bunDB.NewInsert().Model(&e).Exec(context.Background())
	require.NoError(t, err)
}

func registeredCount(t *testing.T, ledger *event.Ledger, id string) int {
	e, err := ledger.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, e)
	return e.RegisteredCount
}

func TestGetMissingEventReturnsNil(t *testing.T) {
	ledger, bunDB := setupLedger(t)
	defer bunDB.Close()

	e, err := ledger.Get(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, e)
}

func TestReserveWithinCapacity(t *testing.T) {
	ledger, bunDB := setupLedger(t)
	defer bunDB.Close()

	insertEvent(t, bunDB, "event1", 10, 7)

	// Primary attendee plus two guests fills the event exactly.
	err := ledger.Reserve(context.Background(), "event1", 3)
	assert.NoError(t, err)
	assert.Equal(t, 10, registeredCount(t, ledger, "event1"))
}

func TestReserveNeverOverbooks(t *testing.T) {
	ledger, bunDB := setupLedger(t)
	defer bunDB.Close()

	insertEvent(t, bunDB, "event1", 10, 9)

	// One seat left, two requested: the conditional update must refuse and
	// leave the counter untouched.
	err := ledger.Reserve(context.Background(), "event1", 2)
	assert.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	assert.Equal(t, 9, registeredCount(t, ledger, "event1"))

	// The single remaining seat is still claimable.
	err = ledger.Reserve(context.Background(), "event1", 1)
	assert.NoError(t, err)
	assert.Equal(t, 10, registeredCount(t, ledger, "event1"))

	// Now completely full.
	err = ledger.Reserve(context.Background(), "event1", 1)
	assert.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestReserveMissingEvent(t *testing.T) {
	ledger, bunDB := setupLedger(t)
	defer bunDB.Close()

	err := ledger.Reserve(context.Background(), "ghost", 1)
	assert.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestReserveRejectsNonPositiveSeats(t *testing.T) {
	ledger, bunDB := setupLedger(t)
	defer bunDB.Close()

	insertEvent(t, bunDB, "event1", 10, 0)

	err := ledger.Reserve(context.Background(), "event1", 0)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	err = ledger.Release(context.Background(), "event1", -1)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestReleaseFreesSeats(t *testing.T) {
	ledger, bunDB := setupLedger(t)
	defer bunDB.Close()

	insertEvent(t, bunDB, "event1", 10, 10)

	err := ledger.Release(context.Background(), "event1", 3)
	assert.NoError(t, err)
	assert.Equal(t, 7, registeredCount(t, ledger, "event1"))
}

func TestReleaseFloorsAtZero(t *testing.T) {
	ledger, bunDB := setupLedger(t)
	defer bunDB.Close()

	insertEvent(t, bunDB, "event1", 10, 2)

	// Releasing more than is registered must clamp, never go negative.
	err := ledger.Release(context.Background(), "event1", 5)
	assert.NoError(t, err)
	assert.Equal(t, 0, registeredCount(t, ledger, "event1"))
}

func TestWaitlistCounter(t *testing.T) {
	ledger, bunDB := setupLedger(t)
	defer bunDB.Close()

	insertEvent(t, bunDB, "event1", 10, 10)

	require.NoError(t, ledger.WaitlistIncrement(context.Background(), "event1"))
	require.NoError(t, ledger.WaitlistIncrement(context.Background(), "event1"))

	e, err := ledger.Get(context.Background(), "event1")
	require.NoError(t, err)
	assert.Equal(t, 2, e.WaitlistCount)

	require.NoError(t, ledger.WaitlistDecrement(context.Background(), "event1"))
	require.NoError(t, ledger.WaitlistDecrement(context.Background(), "event1"))
	// Decrementing an empty waitlist stays at zero.
	require.NoError(t, ledger.WaitlistDecrement(context.Background(), "event1"))

	e, err = ledger.Get(context.Background(), "event1")
	require.NoError(t, err)
	assert.Equal(t, 0, e.WaitlistCount)
}
