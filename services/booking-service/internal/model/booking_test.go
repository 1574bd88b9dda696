package model

import (
	"testing"
	"time"
)

func TestNormalizeInstants(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	a := time.Date(2026, 3, 2, 10, 30, 0, 0, tokyo)
	b := time.Date(2026, 3, 2, 1, 30, 0, 999, time.UTC) // same microsecond as a
	c := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)

	got := NormalizeInstants([]time.Time{a, b, c})
	if len(got) != 2 {
		t.Fatalf("expected 2 distinct instants, got %v", got)
	}
	if !got[0].Equal(c) || got[1] != time.Date(2026, 3, 2, 1, 30, 0, 0, time.UTC) {
		t.Fatalf("unexpected order or value %v", got)
	}
}

func TestRangeContainsIsInclusive(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	r := Range{Start: start, End: start.Add(time.Hour)}
	if !r.Contains(start) || !r.Contains(start.Add(time.Hour)) {
		t.Fatal("expected both bounds to be contained")
	}
	if r.Contains(start.Add(-time.Microsecond)) || r.Contains(start.Add(time.Hour+time.Microsecond)) {
		t.Fatal("expected instants outside bounds to be excluded")
	}
	if (Range{Start: start, End: start.Add(-time.Second)}).Valid() {
		t.Fatal("expected inverted range to be invalid")
	}
}
