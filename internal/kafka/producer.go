// Package kafka streams registration and waitlist lifecycle events for
// downstream consumers (analytics, notification fan-out). Publishing is
// best-effort: the core logs failures and never rolls back on them.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Ishaan29/terpspark-backend/internal/models"
)

const (
	EventRegistrationCreated   = "registration_created"
	EventRegistrationCancelled = "registration_cancelled"
	EventRegistrationCheckedIn = "registration_checked_in"
	EventWaitlistJoined        = "waitlist_joined"
	EventWaitlistLeft          = "waitlist_left"
	EventWaitlistPromoted      = "waitlist_promoted"
)

// envelope is the wire shape of every message either topic carries.
type envelope struct {
	Type       string    `json:"type"`
	EventID    string    `json:"eventId"`
	UserID     string    `json:"userId"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

type Producer struct {
	registrations *kafka.Writer
	waitlist      *kafka.Writer
}

func NewProducer(brokers []string, registrationTopic, waitlistTopic string) *Producer {
	return &Producer{
		registrations: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   registrationTopic,
		}),
		waitlist: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   waitlistTopic,
		}),
	}
}

func (p *Producer) publish(w *kafka.Writer, key string, env envelope) error {
	env.OccurredAt = time.Now().UTC()
	msgBytes, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return w.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(key),
		Value: msgBytes,
	})
}

func (p *Producer) PublishRegistrationCreated(reg models.Registration) error {
	return p.publish(p.registrations, reg.EventID, envelope{
		Type: EventRegistrationCreated, EventID: reg.EventID, UserID: reg.UserID, Payload: reg,
	})
}

func (p *Producer) PublishRegistrationCancelled(reg models.Registration) error {
	return p.publish(p.registrations, reg.EventID, envelope{
		Type: EventRegistrationCancelled, EventID: reg.EventID, UserID: reg.UserID, Payload: reg,
	})
}

func (p *Producer) PublishRegistrationCheckedIn(reg models.Registration) error {
	return p.publish(p.registrations, reg.EventID, envelope{
		Type: EventRegistrationCheckedIn, EventID: reg.EventID, UserID: reg.UserID, Payload: reg,
	})
}

func (p *Producer) PublishWaitlistJoined(entry models.WaitlistEntry) error {
	return p.publish(p.waitlist, entry.EventID, envelope{
		Type: EventWaitlistJoined, EventID: entry.EventID, UserID: entry.UserID, Payload: entry,
	})
}

func (p *Producer) PublishWaitlistLeft(entry models.WaitlistEntry) error {
	return p.publish(p.waitlist, entry.EventID, envelope{
		Type: EventWaitlistLeft, EventID: entry.EventID, UserID: entry.UserID, Payload: entry,
	})
}

func (p *Producer) PublishWaitlistPromoted(entry models.WaitlistEntry) error {
	return p.publish(p.waitlist, entry.EventID, envelope{
		Type: EventWaitlistPromoted, EventID: entry.EventID, UserID: entry.UserID, Payload: entry,
	})
}

func (p *Producer) Close() error {
	if err := p.registrations.Close(); err != nil {
		return err
	}
	return p.waitlist.Close()
}
