package meeting

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()
	link, err := Static{Link: "https://meet.google.com/abc-defg-hij"}.Generate(ctx, "trial", time.Now())
	if err != nil || link != "https://meet.google.com/abc-defg-hij" {
		t.Fatalf("unexpected %q %v", link, err)
	}
	if _, err := (Static{}).Generate(ctx, "trial", time.Now()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestRoomsDeterministic(t *testing.T) {
	r := Rooms{BaseURL: "https://meet.jit.si/"}
	at := time.Date(2026, 3, 2, 1, 30, 0, 0, time.UTC)
	a, err := r.Generate(context.Background(), "Business English (60%)", at)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, _ := r.Generate(context.Background(), "Business English (60%)", at.In(time.FixedZone("JST", 9*3600)))
	want := "https://meet.jit.si/lesson-20260302-0130-business-english-60"
	if a != want || b != want {
		t.Fatalf("expected %q, got %q and %q", want, a, b)
	}
}

func TestNewProvider(t *testing.T) {
	if _, err := NewProvider("zoom", "", ""); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	p, err := NewProvider("", "https://meet.google.com/x", "")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if _, ok := p.(Static); !ok {
		t.Fatalf("expected static provider, got %T", p)
	}
}
