package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Audit actions emitted by the registration core, one per state transition.
const (
	AuditRegistrationCreated   = "registration_created"
	AuditRegistrationCancelled = "registration_cancelled"
	AuditRegistrationCheckedIn = "registration_checked_in"
	AuditWaitlistJoined        = "waitlist_joined"
	AuditWaitlistLeft          = "waitlist_left"
	AuditWaitlistPromoted      = "waitlist_promoted"
	AuditWaitlistStaleRemoved  = "waitlist_stale_removed"
)

const (
	TargetRegistration  = "registration"
	TargetWaitlistEntry = "waitlist_entry"
	TargetEvent         = "event"
)

// AuditLog is an append-only record of a core state transition.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs"`

	ID         int64             `bun:"id,pk,autoincrement" json:"id"`
	Action     string            `bun:"action,notnull" json:"action"`
	ActorID    string            `bun:"actor_id,notnull" json:"actorId"`
	ActorName  string            `bun:"actor_name" json:"actorName"`
	TargetType string            `bun:"target_type,notnull" json:"targetType"`
	TargetID   string            `bun:"target_id,notnull" json:"targetId"`
	Details    string            `bun:"details" json:"details"`
	Metadata   map[string]string `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time         `bun:"created_at,notnull" json:"createdAt"`
}
