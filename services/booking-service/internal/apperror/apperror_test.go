package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("book: %w", New(KindSlotConflict, "slot 10:30 already booked"))
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatal("expected wrapped conflict to match ErrSlotConflict")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("conflict must not match ErrNotFound")
	}
	if KindOf(err) != KindSlotConflict {
		t.Fatalf("unexpected kind %s", KindOf(err))
	}
	if KindOf(errors.New("boom")) != KindInfrastructureFault {
		t.Fatal("unknown errors must be infrastructure faults")
	}
}

func TestPublicHidesInfrastructureCause(t *testing.T) {
	status, code, msg := Public(Infrastructure("insert booking", errors.New("dial tcp 10.0.0.5:5432: refused")))
	if status != http.StatusInternalServerError || code != "internal" || msg != "internal error" {
		t.Fatalf("unexpected public error %d %s %q", status, code, msg)
	}

	status, code, msg = Public(ErrTooLate)
	if status != http.StatusForbidden || code != "too_late" || msg != "too late to cancel" {
		t.Fatalf("unexpected public error %d %s %q", status, code, msg)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidInput:        400,
		KindSlotConflict:        409,
		KindNotFound:            404,
		KindTooLate:             403,
		KindUnauthorized:        401,
		KindInfrastructureFault: 500,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Fatalf("%s: expected %d, got %d", kind, want, got)
		}
	}
}
