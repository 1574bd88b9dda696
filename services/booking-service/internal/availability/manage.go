package availability

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/slotclock"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/storage"
)

// OpenResult reports an open request.
type OpenResult struct {
	Requested int `json:"requested"`
	Opened    int `json:"opened"`
}

// CloseResult reports a close request. Booked instants are never closed.
type CloseResult struct {
	Requested     int         `json:"requested"`
	Closed        int         `json:"closed"`
	SkippedBooked []time.Time `json:"skipped_booked"`
}

// Manager edits the teacher's open slots.
type Manager struct {
	slots storage.SlotEditor
	loc   *time.Location
}

func NewManager(slots storage.SlotEditor, loc *time.Location) *Manager {
	if loc == nil {
		loc = time.UTC
	}
	return &Manager{slots: slots, loc: loc}
}

func (m *Manager) Location() *time.Location { return m.loc }

// Open marks instants open. Every instant must be on the slot grid.
func (m *Manager) Open(ctx context.Context, instants []time.Time) (OpenResult, error) {
	instants, err := m.checkGrid(instants)
	if err != nil {
		return OpenResult{}, err
	}
	n, err := m.slots.Open(ctx, instants)
	if err != nil {
		return OpenResult{}, err
	}
	return OpenResult{Requested: len(instants), Opened: n}, nil
}

// Close removes instants from the open set, skipping any that are booked.
func (m *Manager) Close(ctx context.Context, instants []time.Time) (CloseResult, error) {
	instants, err := m.checkGrid(instants)
	if err != nil {
		return CloseResult{}, err
	}
	closed, booked, err := m.slots.CloseUnbooked(ctx, instants)
	if err != nil {
		return CloseResult{}, err
	}
	return CloseResult{Requested: len(instants), Closed: closed, SkippedBooked: booked}, nil
}

// Span expands a drag selection on one local day into instants.
func (m *Manager) Span(date string, from, to int) ([]time.Time, error) {
	day, err := slotclock.ParseDate(date, m.loc)
	if err != nil {
		return nil, apperror.InvalidInput("date must be YYYY-MM-DD")
	}
	out, err := slotclock.Span(day, from, to, m.loc)
	if err != nil {
		return nil, apperror.InvalidInput(err.Error())
	}
	return out, nil
}

func (m *Manager) checkGrid(instants []time.Time) ([]time.Time, error) {
	instants = model.NormalizeInstants(instants)
	if len(instants) == 0 {
		return nil, apperror.InvalidInput("at least one start time is required")
	}
	for _, t := range instants {
		if !slotclock.OnGrid(t, m.loc) {
			return nil, apperror.InvalidInput("start time " + t.Format(time.RFC3339) + " is not on the slot grid")
		}
	}
	return instants, nil
}
