// Package waitlist manages the ordered queue of users waiting for a full
// event: joining, leaving, and the position contiguity that promotion relies
// on.
package waitlist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ishaan29/terpspark-backend/internal/audit"
	"github.com/Ishaan29/terpspark-backend/internal/domain"
	"github.com/Ishaan29/terpspark-backend/internal/logger"
	"github.com/Ishaan29/terpspark-backend/internal/models"
)

type Store interface {
	Create(ctx context.Context, entry *models.WaitlistEntry) error
	GetByID(ctx context.Context, id string) (*models.WaitlistEntry, error)
	GetByUserAndEvent(ctx context.Context, userID, eventID string) (*models.WaitlistEntry, error)
	NextPosition(ctx context.Context, eventID string) (int, error)
	ListByEvent(ctx context.Context, eventID string) ([]models.WaitlistEntry, error)
	ListByUser(ctx context.Context, userID string) ([]models.WaitlistEntry, error)
	Remove(ctx context.Context, entry *models.WaitlistEntry) error
}

type RegistrationStore interface {
	GetConfirmedByUserAndEvent(ctx context.Context, userID, eventID string) (*models.Registration, error)
}

type EventLedger interface {
	Get(ctx context.Context, eventID string) (*models.Event, error)
	WaitlistIncrement(ctx context.Context, eventID string) error
	WaitlistDecrement(ctx context.Context, eventID string) error
}

type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

type Notifier interface {
	WaitlistJoined(user *models.User, event *models.Event, position int) error
}

type AuditSink interface {
	Record(ctx context.Context, e audit.Entry) error
}

type Publisher interface {
	PublishWaitlistJoined(entry models.WaitlistEntry) error
	PublishWaitlistLeft(entry models.WaitlistEntry) error
}

type EventLock interface {
	AcquireWithRetry(eventID, token string, wait time.Duration) (bool, error)
	UnlockEvent(eventID, token string) error
}

type Service struct {
	Store         Store
	Registrations RegistrationStore
	Events        EventLedger
	Users         UserDirectory
	Lock          EventLock
	Notifier      Notifier
	Audit         AuditSink
	Publisher     Publisher
	Logger        *logger.Logger
}

type JoinRequest struct {
	EventID                string `json:"eventId"`
	NotificationPreference string `json:"notificationPreference"`
}

const lockWait = 5 * time.Second

// Join adds the user to the back of the event's waitlist. Joining is only
// allowed while the event is actually full; otherwise the caller is told to
// register directly.
func (s *Service) Join(ctx context.Context, userID string, req JoinRequest) (*models.WaitlistEntry, error) {
	event, err := s.Events.Get(ctx, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	if event == nil {
		return nil, domain.NotFound("event %s not found", req.EventID)
	}
	if event.Status != models.EventStatusPublished {
		return nil, domain.InvalidState("event is not published (current status: %s)", event.Status)
	}

	existing, err := s.Registrations.GetConfirmedByUserAndEvent(ctx, userID, req.EventID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.Conflict("you are already registered for this event")
	}

	onList, err := s.Store.GetByUserAndEvent(ctx, userID, req.EventID)
	if err != nil {
		return nil, err
	}
	if onList != nil {
		return nil, domain.Conflict("you are already on the waitlist at position %d", onList.Position)
	}

	pref := req.NotificationPreference
	if pref == "" {
		pref = models.NotifyByEmail
	}
	switch pref {
	case models.NotifyByEmail, models.NotifyBySMS, models.NotifyByBoth:
	default:
		return nil, domain.Validation("invalid notification preference %q: use email, sms or both", pref)
	}

	token := uuid.NewString()
	locked, err := s.Lock.AcquireWithRetry(event.ID, token, lockWait)
	if err != nil {
		return nil, fmt.Errorf("acquire event lock: %w", err)
	}
	if !locked {
		return nil, domain.Conflict("event %s is receiving heavy traffic, please retry", event.ID)
	}
	defer func() {
		if err := s.Lock.UnlockEvent(event.ID, token); err != nil {
			s.Logger.Error("WAITLIST", fmt.Sprintf("Failed to unlock event %s: %v", event.ID, err))
		}
	}()

	// Fullness is checked under the lock: a seat freed a moment ago must
	// send the user to direct registration, not the queue.
	event, err = s.Events.Get(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if !event.IsFull() {
		return nil, domain.InvalidState("event still has %d open seat(s); register directly instead of joining the waitlist",
			event.RemainingCapacity())
	}

	position, err := s.Store.NextPosition(ctx, event.ID)
	if err != nil {
		return nil, err
	}

	entry := &models.WaitlistEntry{
		ID:                     uuid.NewString(),
		UserID:                 userID,
		EventID:                event.ID,
		Position:               position,
		NotificationPreference: pref,
		JoinedAt:               time.Now().UTC(),
	}
	if err := s.Store.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("create waitlist entry: %w", err)
	}
	if err := s.Events.WaitlistIncrement(ctx, event.ID); err != nil {
		s.Logger.Error("WAITLIST", fmt.Sprintf("Failed to increment waitlist count for event %s: %v", event.ID, err))
	}

	s.Logger.LogWaitlist("JOIN", event.ID, fmt.Sprintf("User %s joined at position %d", userID, position))

	user, err := s.Users.GetUser(ctx, userID)
	if err != nil || user == nil {
		s.Logger.Warn("WAITLIST", fmt.Sprintf("Could not load user %s for waitlist email: %v", userID, err))
	} else if err := s.Notifier.WaitlistJoined(user, event, position); err != nil {
		s.Logger.Error("WAITLIST", fmt.Sprintf("Failed to send waitlist email to %s: %v", user.Email, err))
	}

	s.recordAudit(ctx, audit.Entry{
		Action:     models.AuditWaitlistJoined,
		ActorID:    userID,
		TargetType: models.TargetWaitlistEntry,
		TargetID:   entry.ID,
		Details:    fmt.Sprintf("Joined waitlist for event %s at position %d", event.ID, position),
	})

	if s.Publisher != nil {
		if err := s.Publisher.PublishWaitlistJoined(*entry); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish waitlist join: %v", err))
		}
	}

	return entry, nil
}

// Leave removes the user's own entry and closes the gap behind it.
func (s *Service) Leave(ctx context.Context, entryID, userID string) error {
	entry, err := s.Store.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return domain.NotFound("waitlist entry %s not found", entryID)
	}
	if entry.UserID != userID {
		return domain.Forbidden("you can only leave your own waitlist spot")
	}

	token := uuid.NewString()
	locked, err := s.Lock.AcquireWithRetry(entry.EventID, token, lockWait)
	if err != nil {
		return fmt.Errorf("acquire event lock: %w", err)
	}
	if !locked {
		return domain.Conflict("event %s is receiving heavy traffic, please retry", entry.EventID)
	}
	defer func() {
		if err := s.Lock.UnlockEvent(entry.EventID, token); err != nil {
			s.Logger.Error("WAITLIST", fmt.Sprintf("Failed to unlock event %s: %v", entry.EventID, err))
		}
	}()

	if err := s.Store.Remove(ctx, entry); err != nil {
		return err
	}
	if err := s.Events.WaitlistDecrement(ctx, entry.EventID); err != nil {
		s.Logger.Error("WAITLIST", fmt.Sprintf("Failed to decrement waitlist count for event %s: %v", entry.EventID, err))
	}

	s.Logger.LogWaitlist("LEAVE", entry.EventID,
		fmt.Sprintf("User %s left from position %d", userID, entry.Position))

	s.recordAudit(ctx, audit.Entry{
		Action:     models.AuditWaitlistLeft,
		ActorID:    userID,
		TargetType: models.TargetWaitlistEntry,
		TargetID:   entry.ID,
		Details:    fmt.Sprintf("Left waitlist for event %s from position %d", entry.EventID, entry.Position),
	})

	if s.Publisher != nil {
		if err := s.Publisher.PublishWaitlistLeft(*entry); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish waitlist leave: %v", err))
		}
	}

	return nil
}

// ListForUser returns the user's waitlist entries across events.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.WaitlistEntry, error) {
	return s.Store.ListByUser(ctx, userID)
}

// EventWaitlist returns an event's full queue in position order, for the
// organizer view.
func (s *Service) EventWaitlist(ctx context.Context, eventID string) ([]models.WaitlistEntry, error) {
	event, err := s.Events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, domain.NotFound("event %s not found", eventID)
	}
	return s.Store.ListByEvent(ctx, eventID)
}

func (s *Service) recordAudit(ctx context.Context, entry audit.Entry) {
	if err := s.Audit.Record(ctx, entry); err != nil {
		s.Logger.Error("AUDIT", fmt.Sprintf("Failed to record %s: %v", entry.Action, err))
	}
}
