package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/meeting"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/storage/memory"
)

var now = time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu        sync.Mutex
	booked    []string
	cancelled []notify.Actor
	err       error
}

func (r *recordingNotifier) Booked(_ context.Context, b model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.booked = append(r.booked, b.ID)
	return r.err
}

func (r *recordingNotifier) Cancelled(_ context.Context, _ model.Booking, by notify.Actor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, by)
	return r.err
}

type failingMeeting struct{}

func (failingMeeting) Generate(context.Context, string, time.Time) (string, error) {
	return "", meeting.ErrNotConfigured
}

func newService(store *memory.Store, n notify.Notifier, p meeting.Provider) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, p, n, clock.Fixed(now), logger, Config{
		TeacherLocation: time.UTC,
		Supported:       func(tag string) bool { return tag == "en" || tag == "ar" },
	})
}

func request(at time.Time) Request {
	return Request{
		ServiceType:  "Quran Recitation",
		StudentName:  "Sara",
		StudentEmail: "sara@example.com",
		StartTime:    at,
	}
}

func TestBookCreatesAndNotifies(t *testing.T) {
	store := memory.New()
	n := &recordingNotifier{}
	svc := newService(store, n, meeting.Static{Link: "https://meet.google.com/abc"})

	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	b, err := svc.Book(context.Background(), request(at))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if b.ID == "" || !b.StartTime.Equal(at) {
		t.Fatalf("unexpected booking %+v", b)
	}
	if b.StudentTimezone != "UTC" || b.PreferredLanguage != "en" {
		t.Fatalf("expected defaults, got tz=%q lang=%q", b.StudentTimezone, b.PreferredLanguage)
	}
	if b.MeetingLink != "https://meet.google.com/abc" {
		t.Fatalf("unexpected meeting link %q", b.MeetingLink)
	}
	if !b.CreatedAt.Equal(now) {
		t.Fatalf("expected created_at from clock, got %s", b.CreatedAt)
	}
	found, _ := store.Find(context.Background(), at)
	if found == nil || found.ID != b.ID || found.MeetingLink != b.MeetingLink {
		t.Fatalf("expected stored booking with its link, got %+v", found)
	}
	if len(n.booked) != 1 || n.booked[0] != b.ID {
		t.Fatalf("expected one booked notice, got %v", n.booked)
	}
}

func TestBookValidation(t *testing.T) {
	store := memory.New()
	n := &recordingNotifier{}
	svc := newService(store, n, nil)
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	cases := map[string]func(r *Request){
		"missing name":     func(r *Request) { r.StudentName = "  " },
		"missing service":  func(r *Request) { r.ServiceType = "" },
		"bad email":        func(r *Request) { r.StudentEmail = "not-an-email" },
		"missing instant":  func(r *Request) { r.StartTime = time.Time{} },
		"off grid":         func(r *Request) { r.StartTime = at.Add(10 * time.Minute) },
		"unknown timezone": func(r *Request) { r.StudentTimezone = "Mars/Olympus" },
		"unknown language": func(r *Request) { r.PreferredLanguage = "fr" },
	}
	for name, mutate := range cases {
		req := request(at)
		mutate(&req)
		if _, err := svc.Book(context.Background(), req); !errors.Is(err, apperror.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", name, err)
		}
	}
	all, _ := store.List(context.Background(), nil)
	if len(all) != 0 || len(n.booked) != 0 {
		t.Fatalf("invalid requests must not have side effects: %d bookings, %d notices", len(all), len(n.booked))
	}
}

func TestBookMeetingFailureUsesPlaceholder(t *testing.T) {
	svc := newService(memory.New(), &recordingNotifier{}, failingMeeting{})
	b, err := svc.Book(context.Background(), request(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if b.MeetingLink != meeting.Placeholder {
		t.Fatalf("expected placeholder link, got %q", b.MeetingLink)
	}
}

func TestBookNotifierFailureKeepsBooking(t *testing.T) {
	store := memory.New()
	svc := newService(store, &recordingNotifier{err: errors.New("smtp down")}, nil)
	b, err := svc.Book(context.Background(), request(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if got, _ := store.Get(context.Background(), b.ID); got == nil {
		t.Fatal("booking must stand after a notification failure")
	}
}

func TestConcurrentBookSingleWinner(t *testing.T) {
	const n = 32
	store := memory.New()
	svc := newService(store, &recordingNotifier{}, nil)
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Book(context.Background(), request(at))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, apperror.ErrSlotConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 || conflicts != n-1 {
		t.Fatalf("expected 1 win and %d conflicts, got %d and %d", n-1, wins, conflicts)
	}
	all, _ := store.List(context.Background(), nil)
	if len(all) != 1 {
		t.Fatalf("expected exactly one stored booking, got %d", len(all))
	}
}

type countingMeeting struct {
	mu    sync.Mutex
	calls int
}

func (c *countingMeeting) Generate(_ context.Context, _ string, instant time.Time) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return "https://meet.example.com/room-" + instant.Format("1504"), nil
}

func TestMeetingLinkOnlyForClaimWinner(t *testing.T) {
	const n = 16
	store := memory.New()
	provider := &countingMeeting{}
	svc := newService(store, &recordingNotifier{}, provider)
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _ = svc.Book(context.Background(), request(at))
		}()
	}
	close(start)
	wg.Wait()

	if provider.calls != 1 {
		t.Fatalf("expected the provider to run once, ran %d times", provider.calls)
	}
	found, _ := store.Find(context.Background(), at)
	if found == nil || found.MeetingLink != "https://meet.example.com/room-0900" {
		t.Fatalf("expected generated link to be stored, got %+v", found)
	}
}

func TestBookingRemovesSlotFromAvailability(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	nine := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	half := nine.Add(30 * time.Minute)
	_, _ = store.Open(ctx, []time.Time{nine, half})

	svc := newService(store, &recordingNotifier{}, nil)
	if _, err := svc.Book(ctx, request(nine)); err != nil {
		t.Fatalf("Book: %v", err)
	}

	r := availability.NewResolver(store, store, clock.Fixed(now))
	day := model.Range{Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC)}
	got, err := r.Available(ctx, day)
	if err != nil {
		t.Fatalf("Available: %v", err)
	}
	if len(got) != 1 || !got[0].Equal(half) {
		t.Fatalf("expected [%s], got %v", half, got)
	}
}

func TestShortNoticeBookingCannotBeCancelled(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	soon := now.Add(30 * time.Minute)
	_, _ = store.Open(ctx, []time.Time{soon})

	r := availability.NewResolver(store, store, clock.Fixed(now))
	got, _ := r.Available(ctx, model.Range{Start: now, End: now.Add(time.Hour)})
	if len(got) != 0 {
		t.Fatalf("slot inside the lead time must not be offered, got %v", got)
	}

	n := &recordingNotifier{}
	svc := newService(store, n, nil)
	b, err := svc.Book(ctx, request(soon))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if _, err := svc.CancelByStudent(ctx, b.ID); !errors.Is(err, apperror.ErrTooLate) {
		t.Fatalf("expected too late, got %v", err)
	}
	if still, _ := store.Get(ctx, b.ID); still == nil {
		t.Fatal("booking must remain after a refused cancellation")
	}
	if len(n.cancelled) != 0 {
		t.Fatalf("no cancellation notice expected, got %v", n.cancelled)
	}
}
