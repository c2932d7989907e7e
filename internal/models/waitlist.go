package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	NotifyByEmail = "email"
	NotifyBySMS   = "sms"
	NotifyByBoth  = "both"
)

// WaitlistEntry is one user's place in line for a full event. Positions for a
// given event are dense: 1..waitlist_count with no gaps after any mutation.
type WaitlistEntry struct {
	bun.BaseModel `bun:"table:waitlist_entries"`

	ID                     string    `bun:"id,pk" json:"id"`
	UserID                 string    `bun:"user_id,notnull" json:"userId"`
	EventID                string    `bun:"event_id,notnull" json:"eventId"`
	Position               int       `bun:"position,notnull" json:"position"`
	NotificationPreference string    `bun:"notification_preference,notnull" json:"notificationPreference"`
	JoinedAt               time.Time `bun:"joined_at,notnull" json:"joinedAt"`
}
