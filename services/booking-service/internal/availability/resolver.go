package availability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	otelx "github.com/md-rashed-zaman/lessonbook/libs/otel"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/storage"
)

// LeadTime is how far ahead of now a slot must start to be offered.
const LeadTime = 24 * time.Hour

// Snapshot is the raw state of a range for the admin view.
type Snapshot struct {
	Open     []time.Time
	Bookings []model.Booking
}

type Resolver struct {
	slots    storage.AvailabilityStore
	bookings storage.BookingStore
	clock    clock.Clock
	tracer   trace.Tracer
}

func NewResolver(slots storage.AvailabilityStore, bookings storage.BookingStore, clk clock.Clock) *Resolver {
	if clk == nil {
		clk = clock.System{}
	}
	return &Resolver{
		slots:    slots,
		bookings: bookings,
		clock:    clk,
		tracer:   otelx.Tracer("booking-service/availability"),
	}
}

// Available returns the bookable instants in r: open, not booked, and
// strictly later than now + LeadTime. Ascending.
func (r *Resolver) Available(ctx context.Context, rng model.Range) ([]time.Time, error) {
	ctx, span := r.tracer.Start(ctx, "availability.Available")
	defer span.End()

	if !rng.Valid() {
		return nil, apperror.InvalidInput("start must not be after end")
	}
	rng = model.NormalizeRange(rng)

	open, err := r.slots.OpenSlots(ctx, rng)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(open) == 0 {
		return []time.Time{}, nil
	}
	booked, err := r.bookings.List(ctx, &rng)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	taken := make(map[time.Time]struct{}, len(booked))
	for _, b := range booked {
		taken[model.NormalizeInstant(b.StartTime)] = struct{}{}
	}
	cutoff := r.clock.Now().Add(LeadTime)

	out := make([]time.Time, 0, len(open))
	for _, t := range open {
		if !t.After(cutoff) {
			continue
		}
		if _, ok := taken[t]; ok {
			continue
		}
		out = append(out, t)
	}
	span.SetAttributes(attribute.Int("slots.open", len(open)), attribute.Int("slots.available", len(out)))
	return out, nil
}

// Grid returns open slots and bookings in r without the lead-time filter.
func (r *Resolver) Grid(ctx context.Context, rng model.Range) (Snapshot, error) {
	ctx, span := r.tracer.Start(ctx, "availability.Grid")
	defer span.End()

	if !rng.Valid() {
		return Snapshot{}, apperror.InvalidInput("start must not be after end")
	}
	rng = model.NormalizeRange(rng)

	open, err := r.slots.OpenSlots(ctx, rng)
	if err != nil {
		span.RecordError(err)
		return Snapshot{}, err
	}
	booked, err := r.bookings.List(ctx, &rng)
	if err != nil {
		span.RecordError(err)
		return Snapshot{}, err
	}
	if open == nil {
		open = []time.Time{}
	}
	if booked == nil {
		booked = []model.Booking{}
	}
	return Snapshot{Open: open, Bookings: booked}, nil
}
