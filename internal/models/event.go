package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	EventStatusDraft     = "draft"
	EventStatusPending   = "pending"
	EventStatusPublished = "published"
	EventStatusCancelled = "cancelled"
)

// Event is the aggregate the capacity ledger operates on. RegisteredCount and
// WaitlistCount are only ever mutated through the ledger's atomic updates.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID              string    `bun:"id,pk" json:"id"`
	Title           string    `bun:"title,notnull" json:"title"`
	Description     string    `bun:"description" json:"description"`
	OrganizerID     string    `bun:"organizer_id" json:"organizerId"`
	Status          string    `bun:"status,notnull" json:"status"`
	Date            time.Time `bun:"date,notnull" json:"date"`
	Capacity        int       `bun:"capacity,notnull" json:"capacity"`
	RegisteredCount int       `bun:"registered_count,notnull,default:0" json:"registeredCount"`
	WaitlistCount   int       `bun:"waitlist_count,notnull,default:0" json:"waitlistCount"`
	CreatedAt       time.Time `bun:"created_at,notnull" json:"createdAt"`
}

// RemainingCapacity never reports negative; callers treat 0 as full.
func (e *Event) RemainingCapacity() int {
	remaining := e.Capacity - e.RegisteredCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsFull reports whether the event has no free seats left.
func (e *Event) IsFull() bool {
	return e.RegisteredCount >= e.Capacity
}
