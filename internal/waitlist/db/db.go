package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/Ishaan29/terpspark-backend/internal/models"
)

// DB is the waitlist queue store. Positions per event are dense (1..n); every
// removal renumbers the entries behind the removed one in a single UPDATE.
type DB struct {
	Bun *bun.DB
}

func (d *DB) Create(ctx context.Context, entry *models.WaitlistEntry) error {
	_, err := d.Bun.NewInsert().Model(entry).Exec(ctx)
	return err
}

func (d *DB) GetByID(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := d.Bun.NewSelect().
		Model(&entry).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (d *DB) GetByUserAndEvent(ctx context.Context, userID, eventID string) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := d.Bun.NewSelect().
		Model(&entry).
		Where("user_id = ?", userID).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// NextPosition returns max(position)+1 for the event, or 1 when the waitlist
// is empty. Callers must hold the event's mutation lock so two joins cannot
// read the same maximum.
func (d *DB) NextPosition(ctx context.Context, eventID string) (int, error) {
	var maxPosition int
	err := d.Bun.NewSelect().
		Model((*models.WaitlistEntry)(nil)).
		ColumnExpr("COALESCE(MAX(position), 0)").
		Where("event_id = ?", eventID).
		Scan(ctx, &maxPosition)
	if err != nil {
		return 0, fmt.Errorf("next waitlist position for event %s: %w", eventID, err)
	}
	return maxPosition + 1, nil
}

// HeadOfLine returns the entry with the lowest position for the event, or nil
// when the waitlist is empty.
func (d *DB) HeadOfLine(ctx context.Context, eventID string) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := d.Bun.NewSelect().
		Model(&entry).
		Where("event_id = ?", eventID).
		Order("position ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (d *DB) ListByEvent(ctx context.Context, eventID string) ([]models.WaitlistEntry, error) {
	var entries []models.WaitlistEntry
	err := d.Bun.NewSelect().
		Model(&entries).
		Where("event_id = ?", eventID).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (d *DB) ListByUser(ctx context.Context, userID string) ([]models.WaitlistEntry, error) {
	var entries []models.WaitlistEntry
	err := d.Bun.NewSelect().
		Model(&entries).
		Where("user_id = ?", userID).
		Order("joined_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (d *DB) CountByEvent(ctx context.Context, eventID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.WaitlistEntry)(nil)).
		Where("event_id = ?", eventID).
		Count(ctx)
}

// Remove deletes the entry and renumbers everything behind it so positions
// stay contiguous. The renumber is a single bulk UPDATE, not a per-row loop,
// and runs in the same transaction as the delete.
func (d *DB) Remove(ctx context.Context, entry *models.WaitlistEntry) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*models.WaitlistEntry)(nil)).
			Where("id = ?", entry.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("remove waitlist entry %s: %w", entry.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			// Entry already gone; nothing to renumber.
			return nil
		}

		_, err = tx.NewUpdate().
			Model((*models.WaitlistEntry)(nil)).
			Set("position = position - 1").
			Where("event_id = ?", entry.EventID).
			Where("position > ?", entry.Position).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("renumber waitlist for event %s: %w", entry.EventID, err)
		}
		return nil
	})
}
