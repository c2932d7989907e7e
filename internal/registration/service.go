// Package registration orchestrates registration creation, cancellation and
// check-in against the capacity ledger and the registration store.
package registration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ishaan29/terpspark-backend/internal/audit"
	"github.com/Ishaan29/terpspark-backend/internal/config"
	"github.com/Ishaan29/terpspark-backend/internal/domain"
	"github.com/Ishaan29/terpspark-backend/internal/logger"
	"github.com/Ishaan29/terpspark-backend/internal/models"
	"github.com/Ishaan29/terpspark-backend/internal/promotion"
	"github.com/Ishaan29/terpspark-backend/internal/ticket"
)

type Store interface {
	CreateRegistration(ctx context.Context, reg *models.Registration) error
	GetByID(ctx context.Context, id string) (*models.Registration, error)
	GetByTicketCode(ctx context.Context, ticketCode string) (*models.Registration, error)
	GetConfirmedByUserAndEvent(ctx context.Context, userID, eventID string) (*models.Registration, error)
	ActiveByEvent(ctx context.Context, eventID string) ([]models.Registration, error)
	ListByUser(ctx context.Context, userID, status string, includePast bool) ([]models.Registration, error)
	TicketCodeExists(ctx context.Context, ticketCode string) (bool, error)
	Cancel(ctx context.Context, id string, at time.Time) (bool, error)
	CheckIn(ctx context.Context, id string, at time.Time) (bool, error)
	MarkReminderSent(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type EventLedger interface {
	Get(ctx context.Context, eventID string) (*models.Event, error)
	Reserve(ctx context.Context, eventID string, seats int) error
	Release(ctx context.Context, eventID string, seats int) error
}

type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type Notifier interface {
	RegistrationConfirmed(user *models.User, event *models.Event, reg *models.Registration) error
	RegistrationCancelled(user *models.User, event *models.Event, reg *models.Registration) error
}

type AuditSink interface {
	Record(ctx context.Context, e audit.Entry) error
}

type Publisher interface {
	PublishRegistrationCreated(reg models.Registration) error
	PublishRegistrationCancelled(reg models.Registration) error
	PublishRegistrationCheckedIn(reg models.Registration) error
}

type EventLock interface {
	AcquireWithRetry(eventID, token string, wait time.Duration) (bool, error)
	UnlockEvent(eventID, token string) error
}

// Promoter is the promotion engine as seen from cancellation: exactly one
// attempt per cancelled registration, failure never fails the cancellation.
type Promoter interface {
	PromoteNext(ctx context.Context, eventID string) (*promotion.Result, error)
}

type Service struct {
	Store     Store
	Events    EventLedger
	Users     UserDirectory
	Lock      EventLock
	Notifier  Notifier
	Audit     AuditSink
	Publisher Publisher
	Promoter  Promoter
	QR        *ticket.QRGenerator
	Policy    config.RegistrationConfig
	Logger    *logger.Logger
}

type RegisterRequest struct {
	EventID  string         `json:"eventId"`
	Guests   []models.Guest `json:"guests"`
	Sessions []string       `json:"sessions"`
}

const lockWait = 5 * time.Second

// Register creates a confirmed registration for userID, running the full
// validation ladder before any state changes. Each failure mode is distinct
// so clients get the specific reason.
func (s *Service) Register(ctx context.Context, userID string, req RegisterRequest) (*models.Registration, error) {
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
	if event.Date.Before(today()) {
		return nil, domain.InvalidState("cannot register for past events")
	}

	existing, err := s.Store.GetConfirmedByUserAndEvent(ctx, userID, req.EventID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.Conflict("you are already registered for this event")
	}

	if err := s.validateGuests(ctx, req.EventID, req.Guests); err != nil {
		return nil, err
	}

	seats := 1 + len(req.Guests)

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
			s.Logger.Error("REGISTRATION", fmt.Sprintf("Failed to unlock event %s: %v", event.ID, err))
		}
	}()

	// Re-read counters under the lock; the pre-lock copy may be stale.
	event, err = s.Events.Get(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	remaining := event.RemainingCapacity()
	if remaining < seats {
		if remaining == 0 {
			return nil, domain.ConflictWithHint(domain.HintJoinWaitlist,
				"event is full, please join the waitlist instead")
		}
		return nil, domain.Conflict(
			"insufficient capacity: only %d seat(s) remaining but you need %d (including guests); reduce guests or join the waitlist",
			remaining, seats)
	}

	code := ticket.NewCode(s.Policy.TicketPrefix, time.Now(), event.ID)
	exists, err := s.Store.TicketCodeExists(ctx, code)
	if err != nil {
		return nil, err
	}
	if exists {
		// Collisions are astronomically rare but the check is mandatory.
		code = fmt.Sprintf("%s-%s", code, uuid.NewString()[:4])
	}

	now := time.Now().UTC()
	reg := &models.Registration{
		ID:            uuid.NewString(),
		UserID:        userID,
		EventID:       event.ID,
		Status:        models.RegistrationStatusConfirmed,
		TicketCode:    code,
		CheckInStatus: models.CheckInStatusNotCheckedIn,
		Guests:        normalizeGuests(req.Guests),
		Sessions:      req.Sessions,
		RegisteredAt:  now,
	}

	qrPayload, err := s.QR.EncryptedPayload(ticket.Claim{
		TicketCode:     code,
		RegistrationID: reg.ID,
		EventID:        event.ID,
		UserID:         userID,
	})
	if err != nil {
		return nil, fmt.Errorf("generate QR payload: %w", err)
	}
	reg.QRCode = qrPayload

	if err := s.Store.CreateRegistration(ctx, reg); err != nil {
		return nil, fmt.Errorf("create registration: %w", err)
	}
	if err := s.Events.Reserve(ctx, event.ID, seats); err != nil {
		// The seat reservation is the invariant gate; if it refuses, the
		// registration row must not survive.
		_ = s.Store.Delete(ctx, reg.ID)
		return nil, err
	}

	s.Logger.LogRegistration("CREATE", reg.ID,
		fmt.Sprintf("User %s registered for event %s with %d guest(s)", userID, event.ID, len(reg.Guests)))

	// Committed. Notification, audit and streaming are best-effort.
	user, err := s.Users.GetUser(ctx, userID)
	if err != nil || user == nil {
		s.Logger.Warn("REGISTRATION", fmt.Sprintf("Could not load user %s for confirmation email: %v", userID, err))
	} else if err := s.Notifier.RegistrationConfirmed(user, event, reg); err != nil {
		s.Logger.Error("REGISTRATION", fmt.Sprintf("Failed to send confirmation email to %s: %v", user.Email, err))
	}

	s.recordAudit(ctx, audit.Entry{
		Action:     models.AuditRegistrationCreated,
		ActorID:    userID,
		ActorName:  userName(user),
		TargetType: models.TargetRegistration,
		TargetID:   reg.ID,
		Details:    fmt.Sprintf("Registered for event %s with %d guest(s)", event.ID, len(reg.Guests)),
		Metadata:   map[string]string{"ticketCode": code},
	})

	if s.Publisher != nil {
		if err := s.Publisher.PublishRegistrationCreated(*reg); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish registration created: %v", err))
		}
	}

	return reg, nil
}

// Cancel flips the registration to cancelled, frees its seats, and then makes
// exactly one waitlist promotion attempt for the event. Promotion failure is
// logged, never surfaced: the cancellation has already committed.
func (s *Service) Cancel(ctx context.Context, registrationID, requestingUserID string) (*models.Registration, error) {
	reg, err := s.Store.GetByID(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, domain.NotFound("registration %s not found", registrationID)
	}
	if reg.UserID != requestingUserID {
		return nil, domain.Forbidden("you can only cancel your own registrations")
	}
	if reg.Status != models.RegistrationStatusConfirmed {
		return nil, domain.InvalidState("registration is already cancelled")
	}

	seats := reg.Seats()

	token := uuid.NewString()
	locked, err := s.Lock.AcquireWithRetry(reg.EventID, token, lockWait)
	if err != nil {
		return nil, fmt.Errorf("acquire event lock: %w", err)
	}
	if !locked {
		return nil, domain.Conflict("event %s is receiving heavy traffic, please retry", reg.EventID)
	}

	now := time.Now().UTC()
	cancelled, err := s.Store.Cancel(ctx, reg.ID, now)
	if err != nil {
		_ = s.Lock.UnlockEvent(reg.EventID, token)
		return nil, fmt.Errorf("cancel registration: %w", err)
	}
	if !cancelled {
		_ = s.Lock.UnlockEvent(reg.EventID, token)
		return nil, domain.InvalidState("registration is already cancelled")
	}
	reg.Status = models.RegistrationStatusCancelled
	reg.CancelledAt = &now

	if err := s.Events.Release(ctx, reg.EventID, seats); err != nil {
		// The cancellation itself is committed; a failed release leaves the
		// ledger over-counting until the standalone promotion/recovery path
		// reconciles it.
		s.Logger.Error("REGISTRATION", fmt.Sprintf("Failed to release %d seat(s) on event %s: %v", seats, reg.EventID, err))
	}

	s.Logger.LogRegistration("CANCEL", reg.ID,
		fmt.Sprintf("User %s cancelled, freed %d seat(s) on event %s", requestingUserID, seats, reg.EventID))

	// Release the lock before promotion: cancellation and promotion are two
	// separate atomic units, and the engine re-validates state on its own.
	if err := s.Lock.UnlockEvent(reg.EventID, token); err != nil {
		s.Logger.Error("REGISTRATION", fmt.Sprintf("Failed to unlock event %s: %v", reg.EventID, err))
	}

	event, err := s.Events.Get(ctx, reg.EventID)
	if err != nil {
		s.Logger.Error("REGISTRATION", fmt.Sprintf("Could not reload event %s: %v", reg.EventID, err))
	}

	user, err := s.Users.GetUser(ctx, requestingUserID)
	if err != nil || user == nil {
		s.Logger.Warn("REGISTRATION", fmt.Sprintf("Could not load user %s for cancellation email: %v", requestingUserID, err))
	} else if event != nil {
		if err := s.Notifier.RegistrationCancelled(user, event, reg); err != nil {
			s.Logger.Error("REGISTRATION", fmt.Sprintf("Failed to send cancellation email to %s: %v", user.Email, err))
		}
	}

	s.recordAudit(ctx, audit.Entry{
		Action:     models.AuditRegistrationCancelled,
		ActorID:    requestingUserID,
		ActorName:  userName(user),
		TargetType: models.TargetRegistration,
		TargetID:   reg.ID,
		Details:    fmt.Sprintf("Cancelled registration on event %s, freed %d seat(s)", reg.EventID, seats),
	})

	if s.Publisher != nil {
		if err := s.Publisher.PublishRegistrationCancelled(*reg); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish registration cancelled: %v", err))
		}
	}

	if s.Promoter != nil {
		if _, err := s.Promoter.PromoteNext(ctx, reg.EventID); err != nil {
			s.Logger.Error("PROMOTION", fmt.Sprintf("Promotion attempt after cancelling %s failed: %v", reg.ID, err))
		}
	}

	return reg, nil
}

// CheckIn marks the ticket's registration as checked in. Check-in moves one
// way only; a second scan of the same ticket is rejected.
func (s *Service) CheckIn(ctx context.Context, ticketCode, scannerID string) (*models.Registration, error) {
	reg, err := s.Store.GetByTicketCode(ctx, ticketCode)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, domain.NotFound("ticket %s not found", ticketCode)
	}
	if reg.Status != models.RegistrationStatusConfirmed {
		return nil, domain.InvalidState("ticket %s belongs to a cancelled registration", ticketCode)
	}
	if reg.CheckInStatus == models.CheckInStatusCheckedIn {
		return nil, domain.InvalidState("ticket %s is already checked in", ticketCode)
	}

	now := time.Now().UTC()
	ok, err := s.Store.CheckIn(ctx, reg.ID, now)
	if err != nil {
		return nil, fmt.Errorf("check in ticket: %w", err)
	}
	if !ok {
		return nil, domain.InvalidState("ticket %s is already checked in", ticketCode)
	}
	reg.CheckInStatus = models.CheckInStatusCheckedIn
	reg.CheckedInAt = &now

	s.Logger.LogRegistration("CHECKIN", reg.ID, fmt.Sprintf("Ticket %s scanned by %s", ticketCode, scannerID))

	s.recordAudit(ctx, audit.Entry{
		Action:     models.AuditRegistrationCheckedIn,
		ActorID:    scannerID,
		TargetType: models.TargetRegistration,
		TargetID:   reg.ID,
		Details:    fmt.Sprintf("Ticket %s checked in", ticketCode),
	})

	if s.Publisher != nil {
		if err := s.Publisher.PublishRegistrationCheckedIn(*reg); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish check-in: %v", err))
		}
	}

	return reg, nil
}

// ListUserRegistrations returns a user's registrations. status is one of
// "confirmed", "cancelled" or "all" (empty means confirmed).
func (s *Service) ListUserRegistrations(ctx context.Context, userID, status string, includePast bool) ([]models.Registration, error) {
	switch status {
	case "", models.RegistrationStatusConfirmed, models.RegistrationStatusCancelled, "all":
	default:
		return nil, domain.Validation("invalid status filter %q: use confirmed, cancelled or all", status)
	}
	if status == "" {
		status = models.RegistrationStatusConfirmed
	}
	return s.Store.ListByUser(ctx, userID, status, includePast)
}

// validateGuests runs steps 5-8 of the registration ladder: guest count,
// institutional email domains, pairwise uniqueness, and the cross-registration
// scan over the event's active registrations.
func (s *Service) validateGuests(ctx context.Context, eventID string, guests []models.Guest) error {
	maxGuests := s.Policy.MaxGuests
	if maxGuests <= 0 {
		maxGuests = models.MaxGuestsPerRegistration
	}
	if len(guests) > maxGuests {
		return domain.Validation("maximum %d guest(s) allowed per registration", maxGuests)
	}

	seen := make(map[string]bool, len(guests))
	for _, guest := range guests {
		email := strings.ToLower(strings.TrimSpace(guest.Email))
		if guest.Name == "" || email == "" {
			return domain.Validation("each guest needs a name and an email address")
		}
		if !s.guestDomainAllowed(email) {
			return domain.Validation("guest email %s must use an approved campus domain (%s)",
				guest.Email, strings.Join(s.Policy.AllowedGuestDomains, ", "))
		}
		if seen[email] {
			return domain.Validation("duplicate guest emails are not allowed")
		}
		seen[email] = true
	}

	if len(guests) == 0 {
		return nil
	}

	// A guest may not already hold a confirmed registration as a primary
	// attendee, nor appear as a guest on someone else's. The scan is
	// O(active registrations), bounded by event capacity.
	active, err := s.Store.ActiveByEvent(ctx, eventID)
	if err != nil {
		return err
	}
	guestTaken := make(map[string]bool)
	for _, reg := range active {
		for _, g := range reg.Guests {
			guestTaken[strings.ToLower(g.Email)] = true
		}
	}

	for _, guest := range guests {
		email := strings.ToLower(strings.TrimSpace(guest.Email))
		if guestTaken[email] {
			return domain.Conflict("guest %s is already attending this event as another registration's guest", guest.Email)
		}
		account, err := s.Users.FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		if account != nil {
			reg, err := s.Store.GetConfirmedByUserAndEvent(ctx, account.ID, eventID)
			if err != nil {
				return err
			}
			if reg != nil {
				return domain.Conflict("guest %s already holds their own registration for this event", guest.Email)
			}
		}
	}
	return nil
}

func (s *Service) guestDomainAllowed(email string) bool {
	for _, suffix := range s.Policy.AllowedGuestDomains {
		suffix = strings.ToLower(strings.TrimSpace(suffix))
		if suffix != "" && strings.HasSuffix(email, suffix) {
			return true
		}
	}
	return false
}

func (s *Service) recordAudit(ctx context.Context, entry audit.Entry) {
	if err := s.Audit.Record(ctx, entry); err != nil {
		s.Logger.Error("AUDIT", fmt.Sprintf("Failed to record %s: %v", entry.Action, err))
	}
}

func normalizeGuests(guests []models.Guest) []models.Guest {
	out := make([]models.Guest, 0, len(guests))
	for _, g := range guests {
		out = append(out, models.Guest{
			Name:  strings.TrimSpace(g.Name),
			Email: strings.ToLower(strings.TrimSpace(g.Email)),
		})
	}
	return out
}

func userName(u *models.User) string {
	if u == nil {
		return ""
	}
	return u.Name
}

// today truncates to the local calendar day; an event happening today is
// still open for registration.
func today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
