package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/Ishaan29/terpspark-backend/internal/models"
)

// DB is the registration store. Lookups return (nil, nil) when no row matches
// so callers can distinguish absence from infrastructure failure.
type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	_, err := d.Bun.NewInsert().Model(reg).Exec(ctx)
	return err
}

func (d *DB) GetByID(ctx context.Context, id string) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (d *DB) GetByTicketCode(ctx context.Context, ticketCode string) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Where("ticket_code = ?", ticketCode).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// GetConfirmedByUserAndEvent returns the user's confirmed registration for the
// event, if one exists. At most one can exist at a time; the store enforces
// this with a partial unique index alongside this lookup.
func (d *DB) GetConfirmedByUserAndEvent(ctx context.Context, userID, eventID string) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Where("user_id = ?", userID).
		Where("event_id = ?", eventID).
		Where("status = ?", models.RegistrationStatusConfirmed).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// ActiveByEvent returns every confirmed registration for the event, used for
// the guest-duplicate scan. Bounded by event capacity.
func (d *DB) ActiveByEvent(ctx context.Context, eventID string) ([]models.Registration, error) {
	var regs []models.Registration
	err := d.Bun.NewSelect().
		Model(&regs).
		Where("event_id = ?", eventID).
		Where("status = ?", models.RegistrationStatusConfirmed).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return regs, nil
}

// ListByUser returns a user's registrations, optionally filtered by status
// and excluding past events. status may be "confirmed", "cancelled" or "all".
func (d *DB) ListByUser(ctx context.Context, userID, status string, includePast bool) ([]models.Registration, error) {
	q := d.Bun.NewSelect().
		Model((*models.Registration)(nil)).
		Where("registration.user_id = ?", userID)

	if status != "" && status != "all" {
		q = q.Where("registration.status = ?", status)
	}
	if !includePast {
		q = q.Join("JOIN events AS e ON e.id = registration.event_id").
			Where("e.date >= ?", time.Now().Truncate(24*time.Hour))
	}

	var regs []models.Registration
	if err := q.Order("registered_at DESC").Scan(ctx, &regs); err != nil {
		return nil, err
	}
	return regs, nil
}

func (d *DB) TicketCodeExists(ctx context.Context, ticketCode string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Registration)(nil)).
		Where("ticket_code = ?", ticketCode).
		Exists(ctx)
}

// Cancel flips a registration to cancelled and stamps cancelled_at. The
// status guard lives in the WHERE clause so a concurrent double-cancel
// affects zero rows instead of re-cancelling.
func (d *DB) Cancel(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Registration)(nil)).
		Set("status = ?", models.RegistrationStatusCancelled).
		Set("cancelled_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", models.RegistrationStatusConfirmed).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CheckIn flips check_in_status one way: not_checked_in -> checked_in.
func (d *DB) CheckIn(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Registration)(nil)).
		Set("check_in_status = ?", models.CheckInStatusCheckedIn).
		Set("checked_in_at = ?", at).
		Where("id = ?", id).
		Where("check_in_status = ?", models.CheckInStatusNotCheckedIn).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (d *DB) MarkReminderSent(ctx context.Context, id string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Registration)(nil)).
		Set("reminder_sent = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// NeedingReminder returns confirmed registrations for events on the given day
// that have not had a reminder sent yet.
func (d *DB) NeedingReminder(ctx context.Context, eventDate time.Time) ([]models.Registration, error) {
	day := eventDate.Truncate(24 * time.Hour)

	var regs []models.Registration
	err := d.Bun.NewSelect().
		Model((*models.Registration)(nil)).
		Join("JOIN events AS e ON e.id = registration.event_id").
		Where("registration.status = ?", models.RegistrationStatusConfirmed).
		Where("registration.reminder_sent = ?", false).
		Where("e.date >= ?", day).
		Where("e.date < ?", day.AddDate(0, 0, 1)).
		Scan(ctx, &regs)
	if err != nil {
		return nil, err
	}
	return regs, nil
}

// Delete removes a registration row. Only used to roll back a registration
// whose seat reservation failed after the insert.
func (d *DB) Delete(ctx context.Context, id string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.Registration)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}
