// Package notification delivers best-effort emails for registration and
// waitlist transitions. Every send is fire-and-forget from the core's point
// of view: callers log failures and move on.
package notification

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/Ishaan29/terpspark-backend/internal/config"
	"github.com/Ishaan29/terpspark-backend/internal/logger"
	"github.com/Ishaan29/terpspark-backend/internal/models"
)

type EmailService struct {
	cfg    config.EmailConfig
	logger *logger.Logger
}

func NewEmailService(cfg config.EmailConfig, log *logger.Logger) *EmailService {
	mode := strings.ToLower(cfg.Mode)
	if mode != "smtp" && mode != "mock" {
		log.Warn("EMAIL", fmt.Sprintf("Invalid EMAIL_MODE %q, defaulting to mock", cfg.Mode))
		cfg.Mode = "mock"
	} else {
		cfg.Mode = mode
	}
	return &EmailService{cfg: cfg, logger: log}
}

func (s *EmailService) RegistrationConfirmed(user *models.User, event *models.Event, reg *models.Registration) error {
	subject := fmt.Sprintf("You're registered for %s", event.Title)
	body := fmt.Sprintf(
		"Hi %s,\n\nYour registration for %s on %s is confirmed.\nTicket code: %s\nGuests: %d\n\nShow the QR code in the app at check-in.\n",
		user.Name, event.Title, event.Date.Format("Jan 2, 2006"), reg.TicketCode, len(reg.Guests))
	return s.send(user.Email, subject, body)
}

func (s *EmailService) RegistrationCancelled(user *models.User, event *models.Event, reg *models.Registration) error {
	subject := fmt.Sprintf("Registration cancelled: %s", event.Title)
	body := fmt.Sprintf(
		"Hi %s,\n\nYour registration for %s has been cancelled. Ticket %s is no longer valid.\n",
		user.Name, event.Title, reg.TicketCode)
	return s.send(user.Email, subject, body)
}

func (s *EmailService) WaitlistJoined(user *models.User, event *models.Event, position int) error {
	subject := fmt.Sprintf("You're on the waitlist for %s", event.Title)
	body := fmt.Sprintf(
		"Hi %s,\n\nYou're number %d in line for %s. We'll email you if a spot opens up.\n",
		user.Name, position, event.Title)
	return s.send(user.Email, subject, body)
}

func (s *EmailService) WaitlistPromoted(user *models.User, event *models.Event, oldPosition int) error {
	subject := fmt.Sprintf("A spot opened up: you're registered for %s", event.Title)
	body := fmt.Sprintf(
		"Hi %s,\n\nGood news! You were number %d on the waitlist for %s and a spot opened up. You're now registered.\n",
		user.Name, oldPosition, event.Title)
	return s.send(user.Email, subject, body)
}

func (s *EmailService) send(to, subject, body string) error {
	if s.cfg.Mode == "mock" {
		s.logger.Info("EMAIL", fmt.Sprintf("[MOCK] to=%s subject=%q", to, subject))
		return nil
	}

	msg := strings.Join([]string{
		fmt.Sprintf("From: %s <%s>", s.cfg.FromName, s.cfg.FromEmail),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"",
		body,
	}, "\r\n")

	addr := s.cfg.SMTPHost + ":" + s.cfg.SMTPPort
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)

	if err := smtp.SendMail(addr, auth, s.cfg.FromEmail, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}
