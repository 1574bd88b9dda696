// Package slotclock maps between absolute instants and the teacher's
// half-hour grid: 48 slots per local day, counted from local midnight.
package slotclock

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

const (
	Granularity = 30 * time.Minute
	SlotsPerDay = 48
	DateLayout  = "2006-01-02"
)

// InstantOf returns the instant of slot index on the calendar date of day,
// read in loc. The wall clock is used, so on DST transition days a slot
// that does not exist locally is normalized forward by time.Date.
func InstantOf(day time.Time, index int, loc *time.Location) (time.Time, error) {
	if index < 0 || index >= SlotsPerDay {
		return time.Time{}, fmt.Errorf("slot index %d out of range [0,%d)", index, SlotsPerDay)
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, index/2, (index%2)*30, 0, 0, loc).UTC(), nil
}

// IndexOf is the inverse of InstantOf. ok is false when instant does not
// fall exactly on a slot boundary in loc.
func IndexOf(instant time.Time, loc *time.Location) (day time.Time, index int, ok bool) {
	local := instant.In(loc)
	if local.Second() != 0 || local.Nanosecond() != 0 || local.Minute()%30 != 0 {
		return time.Time{}, 0, false
	}
	y, m, d := local.Date()
	day = time.Date(y, m, d, 0, 0, 0, 0, loc)
	index = local.Hour()*2 + local.Minute()/30
	// Repeated wall clock hours on DST fall-back days map to one index only.
	back, err := InstantOf(day, index, loc)
	if err != nil || !back.Equal(instant) {
		return time.Time{}, 0, false
	}
	return day, index, true
}

// OnGrid reports whether instant is a slot boundary in loc.
func OnGrid(instant time.Time, loc *time.Location) bool {
	_, _, ok := IndexOf(instant, loc)
	return ok
}

// Day returns the slot instants of the local day, ascending. Slots that
// collapse onto the same instant on DST days are returned once.
func Day(day time.Time, loc *time.Location) []time.Time {
	out := make([]time.Time, 0, SlotsPerDay)
	for i := 0; i < SlotsPerDay; i++ {
		t, _ := InstantOf(day, i, loc)
		if n := len(out); n > 0 && !t.After(out[n-1]) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Span returns the instants of slots from..to (inclusive) on day.
func Span(day time.Time, from, to int, loc *time.Location) ([]time.Time, error) {
	if from > to {
		from, to = to, from
	}
	out := make([]time.Time, 0, to-from+1)
	for i := from; i <= to; i++ {
		t, err := InstantOf(day, i, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ParseDate parses YYYY-MM-DD as local midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, loc)
}

// DayBounds returns the first and last slot instants of the local day, the
// inclusive range that covers it.
func DayBounds(day time.Time, loc *time.Location) (first, last time.Time) {
	slots := Day(day, loc)
	return slots[0], slots[len(slots)-1]
}
