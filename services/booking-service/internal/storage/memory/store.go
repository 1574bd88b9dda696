// Package memory is an in-process store used for local runs and tests. One
// Store serves as both the availability and the booking store.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/storage"
)

var errDuplicateID = errors.New("duplicate booking id")

type Store struct {
	mu        sync.RWMutex
	slots     map[time.Time]struct{}
	bookings  map[string]model.Booking
	byInstant map[time.Time]string
}

func New() *Store {
	return &Store{
		slots:     map[time.Time]struct{}{},
		bookings:  map[string]model.Booking{},
		byInstant: map[time.Time]string{},
	}
}

func (s *Store) OpenSlots(ctx context.Context, r model.Range) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.Infrastructure("query open slots", err)
	}
	r = model.NormalizeRange(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []time.Time
	for t := range s.slots {
		if r.Contains(t) {
			out = append(out, t)
		}
	}
	model.SortInstants(out)
	return out, nil
}

func (s *Store) Open(ctx context.Context, instants []time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperror.Infrastructure("open slots", err)
	}
	instants = model.NormalizeInstants(instants)
	s.mu.Lock()
	defer s.mu.Unlock()

	opened := 0
	for _, t := range instants {
		if _, ok := s.slots[t]; ok {
			continue
		}
		s.slots[t] = struct{}{}
		opened++
	}
	return opened, nil
}

func (s *Store) Close(ctx context.Context, instants []time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperror.Infrastructure("close slots", err)
	}
	instants = model.NormalizeInstants(instants)
	s.mu.Lock()
	defer s.mu.Unlock()

	closed := 0
	for _, t := range instants {
		if _, ok := s.slots[t]; !ok {
			continue
		}
		delete(s.slots, t)
		closed++
	}
	return closed, nil
}

func (s *Store) CloseUnbooked(ctx context.Context, instants []time.Time) (int, []time.Time, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, apperror.Infrastructure("close unbooked slots", err)
	}
	instants = model.NormalizeInstants(instants)
	s.mu.Lock()
	defer s.mu.Unlock()

	closed := 0
	booked := []time.Time{}
	for _, t := range instants {
		if _, ok := s.byInstant[t]; ok {
			booked = append(booked, t)
			continue
		}
		if _, ok := s.slots[t]; ok {
			delete(s.slots, t)
			closed++
		}
	}
	return closed, booked, nil
}

func (s *Store) Find(ctx context.Context, instant time.Time) (*model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.Infrastructure("find booking", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byInstant[model.NormalizeInstant(instant)]
	if !ok {
		return nil, nil
	}
	b := s.bookings[id]
	return &b, nil
}

func (s *Store) Get(ctx context.Context, id string) (*model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.Infrastructure("get booking", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, apperror.NotFound("booking not found")
	}
	return &b, nil
}

// Create checks and inserts under one write lock, the in-process
// equivalent of a unique index.
func (s *Store) Create(ctx context.Context, b *model.Booking) error {
	if err := ctx.Err(); err != nil {
		return apperror.Infrastructure("insert booking", err)
	}
	stored := *b
	stored.StartTime = model.NormalizeInstant(b.StartTime)
	stored.CreatedAt = model.NormalizeInstant(b.CreatedAt)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byInstant[stored.StartTime]; taken {
		return apperror.New(apperror.KindSlotConflict, "slot already booked")
	}
	if _, dup := s.bookings[stored.ID]; dup {
		return apperror.Infrastructure("insert booking", errDuplicateID)
	}
	s.bookings[stored.ID] = stored
	s.byInstant[stored.StartTime] = stored.ID
	return nil
}

func (s *Store) SetMeetingLink(ctx context.Context, id, link string) error {
	if err := ctx.Err(); err != nil {
		return apperror.Infrastructure("update meeting link", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return apperror.NotFound("booking not found")
	}
	b.MeetingLink = link
	s.bookings[id] = b
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return apperror.Infrastructure("delete booking", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return apperror.NotFound("booking not found")
	}
	delete(s.bookings, id)
	delete(s.byInstant, b.StartTime)
	return nil
}

func (s *Store) List(ctx context.Context, r *model.Range) ([]model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.Infrastructure("list bookings", err)
	}
	var rng model.Range
	if r != nil {
		rng = model.NormalizeRange(*r)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Booking
	for _, b := range s.bookings {
		if r != nil && !rng.Contains(b.StartTime) {
			continue
		}
		out = append(out, b)
	}
	model.SortBookings(out)
	return out, nil
}

var (
	_ storage.SlotEditor   = (*Store)(nil)
	_ storage.BookingStore = (*Store)(nil)
)
