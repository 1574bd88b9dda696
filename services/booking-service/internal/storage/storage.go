package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
)

// AvailabilityStore holds the set of open slot instants. It knows nothing
// about bookings.
type AvailabilityStore interface {
	// OpenSlots returns open instants in r (inclusive), ascending.
	OpenSlots(ctx context.Context, r model.Range) ([]time.Time, error)
	// Open marks instants open and returns how many were newly opened.
	Open(ctx context.Context, instants []time.Time) (int, error)
	// Close removes instants and returns how many were open before.
	Close(ctx context.Context, instants []time.Time) (int, error)
}

// SlotEditor is an AvailabilityStore that can also close slots while
// respecting bookings.
type SlotEditor interface {
	AvailabilityStore
	// CloseUnbooked removes the instants that have no booking, checking and
	// deleting in one atomic step. It returns how many slots were removed and
	// the booked instants it left alone, ascending.
	CloseUnbooked(ctx context.Context, instants []time.Time) (int, []time.Time, error)
}

// BookingStore holds confirmed bookings, at most one per instant.
type BookingStore interface {
	// Find returns the booking at instant, or nil when the instant is free.
	Find(ctx context.Context, instant time.Time) (*model.Booking, error)
	Get(ctx context.Context, id string) (*model.Booking, error)
	// Create inserts b atomically and fails with a slot conflict when the
	// instant is already booked.
	Create(ctx context.Context, b *model.Booking) error
	// SetMeetingLink replaces the link on an existing booking.
	SetMeetingLink(ctx context.Context, id, link string) error
	Delete(ctx context.Context, id string) error
	// List returns bookings ascending by instant; a nil range lists all.
	List(ctx context.Context, r *model.Range) ([]model.Booking, error)
}
