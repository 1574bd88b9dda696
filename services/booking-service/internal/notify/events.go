package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/lessonbook/libs/kafkax"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
)

const (
	EventBooked    = "booking.booked.v1"
	EventCancelled = "booking.cancelled.v1"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// BookingEvent is the JSON payload of both event types. Student contact
// details stay out of the event; consumers look them up by booking id.
type BookingEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	OccurredAt  time.Time `json:"occurred_at"`
	BookingID   string    `json:"booking_id"`
	StartTime   time.Time `json:"start_time"`
	ServiceType string    `json:"service_type"`
	Language    string    `json:"preferred_language"`
	CancelledBy string    `json:"cancelled_by,omitempty"`
}

// EventPublisher writes booking events to Kafka, keyed by booking id.
type EventPublisher struct {
	writer messageWriter
	prefix string
	now    func() time.Time
}

func NewEventPublisher(w *kafka.Writer, topicPrefix string) *EventPublisher {
	return newEventPublisher(w, topicPrefix)
}

func newEventPublisher(w messageWriter, topicPrefix string) *EventPublisher {
	return &EventPublisher{writer: w, prefix: topicPrefix, now: time.Now}
}

func (p *EventPublisher) Booked(ctx context.Context, b model.Booking) error {
	return p.publish(ctx, EventBooked, b, "")
}

func (p *EventPublisher) Cancelled(ctx context.Context, b model.Booking, by Actor) error {
	return p.publish(ctx, EventCancelled, b, string(by))
}

func (p *EventPublisher) publish(ctx context.Context, eventType string, b model.Booking, by string) error {
	ev := BookingEvent{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		OccurredAt:  p.now().UTC(),
		BookingID:   b.ID,
		StartTime:   b.StartTime.UTC(),
		ServiceType: b.ServiceType,
		Language:    b.PreferredLanguage,
		CancelledBy: by,
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}
	meta := kafkax.EventMeta{EventID: ev.EventID, EventType: eventType}
	msg := kafka.Message{
		Topic:   kafkax.TopicName(p.prefix, eventType),
		Key:     []byte(b.ID),
		Value:   payload,
		Headers: kafkax.InjectTraceHeaders(ctx, meta.Headers()),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}
