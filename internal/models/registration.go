package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	RegistrationStatusConfirmed = "confirmed"
	RegistrationStatusCancelled = "cancelled"

	CheckInStatusNotCheckedIn = "not_checked_in"
	CheckInStatusCheckedIn    = "checked_in"
)

// MaxGuestsPerRegistration caps how many guests a primary attendee may bring.
const MaxGuestsPerRegistration = 2

// Guest is one additional attendee brought by the primary registrant.
// Each guest consumes one seat of event capacity.
type Guest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Registration is one primary attendee's confirmed or cancelled attendance.
// Status moves one way only (confirmed -> cancelled); re-registering creates
// a new record rather than resurrecting the old one.
type Registration struct {
	bun.BaseModel `bun:"table:registrations"`

	ID            string     `bun:"id,pk" json:"id"`
	UserID        string     `bun:"user_id,notnull" json:"userId"`
	EventID       string     `bun:"event_id,notnull" json:"eventId"`
	Status        string     `bun:"status,notnull" json:"status"`
	TicketCode    string     `bun:"ticket_code,notnull,unique" json:"ticketCode"`
	QRCode        string     `bun:"qr_code" json:"qrCode"`
	CheckInStatus string     `bun:"check_in_status,notnull" json:"checkInStatus"`
	Guests        []Guest    `bun:"guests,type:jsonb" json:"guests"`
	Sessions      []string   `bun:"sessions,type:jsonb" json:"sessions"`
	RegisteredAt  time.Time  `bun:"registered_at,notnull" json:"registeredAt"`
	CancelledAt   *time.Time `bun:"cancelled_at" json:"cancelledAt,omitempty"`
	CheckedInAt   *time.Time `bun:"checked_in_at" json:"checkedInAt,omitempty"`
	ReminderSent  bool       `bun:"reminder_sent,notnull,default:false" json:"reminderSent"`
}

// Seats is the number of capacity units this registration occupies:
// the primary attendee plus one per guest.
func (r *Registration) Seats() int {
	return 1 + len(r.Guests)
}

// IsConfirmed reports whether the registration still occupies seats.
func (r *Registration) IsConfirmed() bool {
	return r.Status == RegistrationStatusConfirmed
}
