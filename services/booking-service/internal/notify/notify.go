// Package notify delivers booking lifecycle notices: email to the student
// and teacher, a Telegram alert to the teacher, and domain events on Kafka.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
)

// Actor is who cancelled a booking.
type Actor string

const (
	ActorStudent Actor = "student"
	ActorTeacher Actor = "teacher"
)

type Notifier interface {
	Booked(ctx context.Context, b model.Booking) error
	Cancelled(ctx context.Context, b model.Booking, by Actor) error
}

type Sink struct {
	Name     string
	Notifier Notifier
}

// Multi fans a notice out to every sink in order. A failing sink is logged
// and the rest still run; Multi itself never returns an error.
type Multi struct {
	sinks   []Sink
	logger  *slog.Logger
	timeout time.Duration
}

func NewMulti(logger *slog.Logger, timeout time.Duration, sinks ...Sink) *Multi {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	var active []Sink
	for _, s := range sinks {
		if s.Notifier != nil {
			active = append(active, s)
		}
	}
	return &Multi{sinks: active, logger: logger, timeout: timeout}
}

func (m *Multi) Booked(ctx context.Context, b model.Booking) error {
	m.each(ctx, "booked", b.ID, func(ctx context.Context, n Notifier) error {
		return n.Booked(ctx, b)
	})
	return nil
}

func (m *Multi) Cancelled(ctx context.Context, b model.Booking, by Actor) error {
	m.each(ctx, "cancelled_by_"+string(by), b.ID, func(ctx context.Context, n Notifier) error {
		return n.Cancelled(ctx, b, by)
	})
	return nil
}

// each detaches from the caller's cancellation so a client hanging up does
// not abort delivery; every sink gets its own deadline.
func (m *Multi) each(ctx context.Context, notice, bookingID string, fn func(context.Context, Notifier) error) {
	base := context.WithoutCancel(ctx)
	for _, s := range m.sinks {
		sinkCtx, cancel := context.WithTimeout(base, m.timeout)
		err := fn(sinkCtx, s.Notifier)
		cancel()
		if err != nil {
			m.logger.Error("notification failed",
				"sink", s.Name,
				"notice", notice,
				"booking_id", bookingID,
				"err", err,
			)
		}
	}
}

// Nop drops every notice.
type Nop struct{}

func (Nop) Booked(context.Context, model.Booking) error           { return nil }
func (Nop) Cancelled(context.Context, model.Booking, Actor) error { return nil }
