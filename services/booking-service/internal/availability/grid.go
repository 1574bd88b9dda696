package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/slotclock"
)

type CellState string

const (
	CellClosed CellState = "closed"
	CellOpen   CellState = "open"
	CellBooked CellState = "booked"
)

// Display tolerances for matching stored instants to grid cells. Storage
// itself always compares exactly.
const (
	openTolerance   = 5 * time.Minute
	bookedTolerance = time.Second
)

type Cell struct {
	SlotIndex int       `json:"slot_index"`
	StartTime time.Time `json:"start_time"`
	State     CellState `json:"state"`
	BookingID string    `json:"booking_id,omitempty"`
}

type DayRow struct {
	Date  string `json:"date"`
	Cells []Cell `json:"cells"`
}

// BuildGrid lays snap out as one row of 48 cells per local day, starting at
// from. Booked wins over open.
func BuildGrid(snap Snapshot, from time.Time, days int, loc *time.Location) []DayRow {
	open := append([]time.Time(nil), snap.Open...)
	model.SortInstants(open)
	bookings := append([]model.Booking(nil), snap.Bookings...)
	model.SortBookings(bookings)

	y, m, d := from.In(loc).Date()
	rows := make([]DayRow, 0, days)
	for i := 0; i < days; i++ {
		day := time.Date(y, m, d+i, 0, 0, 0, 0, loc)
		row := DayRow{Date: day.Format(slotclock.DateLayout), Cells: make([]Cell, 0, slotclock.SlotsPerDay)}
		for idx := 0; idx < slotclock.SlotsPerDay; idx++ {
			instant, _ := slotclock.InstantOf(day, idx, loc)
			cell := Cell{SlotIndex: idx, StartTime: instant, State: CellClosed}
			if b, ok := nearestBooking(bookings, instant); ok {
				cell.State = CellBooked
				cell.BookingID = b.ID
			} else if nearOpen(open, instant) {
				cell.State = CellOpen
			}
			row.Cells = append(row.Cells, cell)
		}
		rows = append(rows, row)
	}
	return rows
}

// GridRange is the inclusive instant range covered by BuildGrid.
func GridRange(from time.Time, days int, loc *time.Location) model.Range {
	y, m, d := from.In(loc).Date()
	first := time.Date(y, m, d, 0, 0, 0, 0, loc)
	last := time.Date(y, m, d+days-1, 0, 0, 0, 0, loc)
	start, _ := slotclock.DayBounds(first, loc)
	_, end := slotclock.DayBounds(last, loc)
	return model.Range{Start: start.Add(-openTolerance), End: end.Add(openTolerance)}
}

func nearOpen(sorted []time.Time, t time.Time) bool {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i].After(t.Add(-openTolerance)) })
	return i < len(sorted) && sorted[i].Before(t.Add(openTolerance))
}

func nearestBooking(sorted []model.Booking, t time.Time) (model.Booking, bool) {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i].StartTime.After(t.Add(-bookedTolerance)) })
	if i < len(sorted) && sorted[i].StartTime.Before(t.Add(bookedTolerance)) {
		return sorted[i], true
	}
	return model.Booking{}, false
}
