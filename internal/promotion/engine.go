// Package promotion converts the head of an event's waitlist into a confirmed
// registration when capacity frees up. It is invoked after every cancellation
// and can be run standalone for operational recovery.
package promotion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ishaan29/terpspark-backend/internal/audit"
	"github.com/Ishaan29/terpspark-backend/internal/domain"
	"github.com/Ishaan29/terpspark-backend/internal/logger"
	"github.com/Ishaan29/terpspark-backend/internal/models"
	"github.com/Ishaan29/terpspark-backend/internal/ticket"
)

type RegistrationStore interface {
	CreateRegistration(ctx context.Context, reg *models.Registration) error
	GetConfirmedByUserAndEvent(ctx context.Context, userID, eventID string) (*models.Registration, error)
	TicketCodeExists(ctx context.Context, ticketCode string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type WaitlistStore interface {
	HeadOfLine(ctx context.Context, eventID string) (*models.WaitlistEntry, error)
	Remove(ctx context.Context, entry *models.WaitlistEntry) error
}

type EventLedger interface {
	Get(ctx context.Context, eventID string) (*models.Event, error)
	Reserve(ctx context.Context, eventID string, seats int) error
	WaitlistDecrement(ctx context.Context, eventID string) error
}

type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

type Notifier interface {
	WaitlistPromoted(user *models.User, event *models.Event, oldPosition int) error
}

type AuditSink interface {
	Record(ctx context.Context, e audit.Entry) error
}

type Publisher interface {
	PublishRegistrationCreated(reg models.Registration) error
	PublishWaitlistPromoted(entry models.WaitlistEntry) error
}

type EventLock interface {
	AcquireWithRetry(eventID, token string, wait time.Duration) (bool, error)
	UnlockEvent(eventID, token string) error
}

// Result reports whether a promotion happened. "No promotion" is a normal
// outcome (empty waitlist, stale head, seat already retaken), not an error.
type Result struct {
	Promoted     bool
	Registration *models.Registration
	Entry        *models.WaitlistEntry
}

type Engine struct {
	Registrations RegistrationStore
	Waitlist      WaitlistStore
	Events        EventLedger
	Users         UserDirectory
	Lock          EventLock
	Notifier      Notifier
	Audit         AuditSink
	Publisher     Publisher
	QR            *ticket.QRGenerator
	TicketPrefix  string
	Logger        *logger.Logger
}

const lockWait = 5 * time.Second

// PromoteNext performs at most one promotion for the event. It never drains
// the queue: a cancellation that freed several seats promotes a single user
// and leaves the rest of the capacity for direct registration.
func (e *Engine) PromoteNext(ctx context.Context, eventID string) (*Result, error) {
	token := uuid.NewString()
	locked, err := e.Lock.AcquireWithRetry(eventID, token, lockWait)
	if err != nil {
		return nil, fmt.Errorf("acquire event lock: %w", err)
	}
	if !locked {
		return nil, domain.Conflict("event %s is busy, promotion not attempted", eventID)
	}
	defer func() {
		if err := e.Lock.UnlockEvent(eventID, token); err != nil {
			e.Logger.Error("PROMOTION", fmt.Sprintf("Failed to unlock event %s: %v", eventID, err))
		}
	}()

	head, err := e.Waitlist.HeadOfLine(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("fetch head of waitlist: %w", err)
	}
	if head == nil {
		return &Result{Promoted: false}, nil
	}

	// A head who already holds a confirmed registration is a stale entry
	// (promoted earlier, or re-registered directly). Dequeue without
	// creating anything; this is not a promotion.
	existing, err := e.Registrations.GetConfirmedByUserAndEvent(ctx, head.UserID, eventID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := e.Waitlist.Remove(ctx, head); err != nil {
			return nil, fmt.Errorf("remove stale waitlist entry: %w", err)
		}
		if err := e.Events.WaitlistDecrement(ctx, eventID); err != nil {
			e.Logger.Error("PROMOTION", fmt.Sprintf("Failed to decrement waitlist count for event %s: %v", eventID, err))
		}
		e.recordAudit(ctx, audit.Entry{
			Action:     models.AuditWaitlistStaleRemoved,
			ActorID:    head.UserID,
			TargetType: models.TargetWaitlistEntry,
			TargetID:   head.ID,
			Details:    fmt.Sprintf("Removed stale waitlist entry at position %d: user already registered", head.Position),
		})
		return &Result{Promoted: false, Entry: head}, nil
	}

	event, err := e.Events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, domain.NotFound("event %s not found", eventID)
	}
	if event.RemainingCapacity() < 1 {
		// The freed seat was retaken before we got here; the head stays
		// queued for the next opening.
		return &Result{Promoted: false}, nil
	}

	code := ticket.NewCode(e.TicketPrefix, time.Now(), eventID)
	exists, err := e.Registrations.TicketCodeExists(ctx, code)
	if err != nil {
		return nil, err
	}
	if exists {
		code = fmt.Sprintf("%s-%s", code, uuid.NewString()[:4])
	}

	now := time.Now().UTC()
	reg := &models.Registration{
		ID:            uuid.NewString(),
		UserID:        head.UserID,
		EventID:       eventID,
		Status:        models.RegistrationStatusConfirmed,
		TicketCode:    code,
		CheckInStatus: models.CheckInStatusNotCheckedIn,
		Guests:        []models.Guest{}, // promotions never carry guest slots
		Sessions:      []string{},
		RegisteredAt:  now,
	}

	qrPayload, err := e.QR.EncryptedPayload(ticket.Claim{
		TicketCode:     code,
		RegistrationID: reg.ID,
		EventID:        eventID,
		UserID:         head.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("generate QR payload: %w", err)
	}
	reg.QRCode = qrPayload

	if err := e.Registrations.CreateRegistration(ctx, reg); err != nil {
		return nil, fmt.Errorf("create promoted registration: %w", err)
	}
	if err := e.Events.Reserve(ctx, eventID, 1); err != nil {
		_ = e.Registrations.Delete(ctx, reg.ID)
		return nil, fmt.Errorf("reserve seat for promotion: %w", err)
	}

	if err := e.Waitlist.Remove(ctx, head); err != nil {
		return nil, fmt.Errorf("dequeue promoted entry: %w", err)
	}
	if err := e.Events.WaitlistDecrement(ctx, eventID); err != nil {
		e.Logger.Error("PROMOTION", fmt.Sprintf("Failed to decrement waitlist count for event %s: %v", eventID, err))
	}

	e.Logger.LogWaitlist("PROMOTE", eventID,
		fmt.Sprintf("Promoted user %s from position %d (ticket %s)", head.UserID, head.Position, code))

	// Committed. Everything below is best-effort.
	if user, err := e.Users.GetUser(ctx, head.UserID); err != nil || user == nil {
		e.Logger.Warn("PROMOTION", fmt.Sprintf("Could not load user %s for promotion notice: %v", head.UserID, err))
	} else if err := e.Notifier.WaitlistPromoted(user, event, head.Position); err != nil {
		e.Logger.Error("PROMOTION", fmt.Sprintf("Failed to send promotion notice to %s: %v", user.Email, err))
	}

	e.recordAudit(ctx, audit.Entry{
		Action:     models.AuditWaitlistPromoted,
		ActorID:    head.UserID,
		TargetType: models.TargetRegistration,
		TargetID:   reg.ID,
		Details:    fmt.Sprintf("Promoted from waitlist position %d on event %s", head.Position, eventID),
		Metadata:   map[string]string{"ticketCode": code},
	})

	if e.Publisher != nil {
		if err := e.Publisher.PublishWaitlistPromoted(*head); err != nil {
			e.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish waitlist promotion: %v", err))
		}
		if err := e.Publisher.PublishRegistrationCreated(*reg); err != nil {
			e.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish promoted registration: %v", err))
		}
	}

	return &Result{Promoted: true, Registration: reg, Entry: head}, nil
}

func (e *Engine) recordAudit(ctx context.Context, entry audit.Entry) {
	if err := e.Audit.Record(ctx, entry); err != nil {
		e.Logger.Error("AUDIT", fmt.Sprintf("Failed to record %s: %v", entry.Action, err))
	}
}
