package model

import (
	"time"
)

// Booking is a confirmed lesson. It stands on its own once created: closing
// the slot it was booked on does not remove it.
type Booking struct {
	ID                string
	StartTime         time.Time
	ServiceType       string
	StudentName       string
	StudentEmail      string
	Message           string
	StudentTimezone   string
	MeetingLink       string
	PreferredLanguage string
	CreatedAt         time.Time
}

// EndTime is the end of the half-hour lesson.
func (b Booking) EndTime() time.Time {
	return b.StartTime.Add(SlotDuration)
}

const SlotDuration = 30 * time.Minute

// Range is an inclusive instant range [Start, End].
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

func (r Range) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && !r.End.Before(r.Start)
}

// NormalizeRange normalizes both bounds.
func NormalizeRange(r Range) Range {
	return Range{Start: NormalizeInstant(r.Start), End: NormalizeInstant(r.End)}
}

// NormalizeInstant converts t to UTC at microsecond precision, the
// resolution of a Postgres timestamptz, so every store compares instants
// the same way.
func NormalizeInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// NormalizeInstants normalizes, sorts and dedupes ts.
func NormalizeInstants(ts []time.Time) []time.Time {
	out := make([]time.Time, 0, len(ts))
	seen := make(map[time.Time]struct{}, len(ts))
	for _, t := range ts {
		n := NormalizeInstant(t)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	SortInstants(out)
	return out
}
