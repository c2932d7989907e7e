// Package event implements the capacity ledger: the authoritative seat
// counters for an event. All mutations of registered_count and waitlist_count
// go through here as single atomic UPDATE statements.
package event

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/Ishaan29/terpspark-backend/internal/domain"
	"github.com/Ishaan29/terpspark-backend/internal/models"
)

type Ledger struct {
	Bun *bun.DB
}

func NewLedger(bunDB *bun.DB) *Ledger {
	return &Ledger{Bun: bunDB}
}

// Get fetches an event by id, or nil when it does not exist.
func (l *Ledger) Get(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := l.Bun.NewSelect().
		Model(&event).
		Where("id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Reserve occupies seats on the event. The capacity check and the increment
// are one conditional UPDATE, so two concurrent reservations can never both
// succeed on the last seat regardless of any outer locking.
func (l *Ledger) Reserve(ctx context.Context, eventID string, seats int) error {
	if seats < 1 {
		return domain.Validation("seat count must be at least 1, got %d", seats)
	}

	res, err := l.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("registered_count = registered_count + ?", seats).
		Where("id = ?", eventID).
		Where("registered_count + ? <= capacity", seats).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reserve %d seat(s) on event %s: %w", seats, eventID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		event, getErr := l.Get(ctx, eventID)
		if getErr != nil {
			return getErr
		}
		if event == nil {
			return domain.NotFound("event %s not found", eventID)
		}
		return domain.Conflict("insufficient capacity on event %s: %d seat(s) remaining, %d required",
			eventID, event.RemainingCapacity(), seats)
	}
	return nil
}

// Release frees seats, flooring the counter at zero. The floor guards against
// a double-release elsewhere corrupting the ledger; it is expressed as a CASE
// so the whole release stays a single statement.
func (l *Ledger) Release(ctx context.Context, eventID string, seats int) error {
	if seats < 1 {
		return domain.Validation("seat count must be at least 1, got %d", seats)
	}

	_, err := l.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("registered_count = CASE WHEN registered_count > ? THEN registered_count - ? ELSE 0 END", seats, seats).
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("release %d seat(s) on event %s: %w", seats, eventID, err)
	}
	return nil
}

// WaitlistIncrement bumps the event's waitlist counter.
func (l *Ledger) WaitlistIncrement(ctx context.Context, eventID string) error {
	_, err := l.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("waitlist_count = waitlist_count + 1").
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("increment waitlist count on event %s: %w", eventID, err)
	}
	return nil
}

// WaitlistDecrement lowers the event's waitlist counter, floored at zero.
func (l *Ledger) WaitlistDecrement(ctx context.Context, eventID string) error {
	_, err := l.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("waitlist_count = CASE WHEN waitlist_count > 0 THEN waitlist_count - 1 ELSE 0 END").
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("decrement waitlist count on event %s: %w", eventID, err)
	}
	return nil
}
