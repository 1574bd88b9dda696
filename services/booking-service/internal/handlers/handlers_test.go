package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/auth"
	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/email"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/i18n"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/meeting"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/storage/memory"
)

var (
	now  = time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)
	nine = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
)

type fixture struct {
	mux   *http.ServeMux
	store *memory.Store
	token string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, func(*i18n.Catalog, *time.Location, clock.Clock) notify.Notifier { return notify.Nop{} })
}

func newFixtureWith(t *testing.T, notifier func(*i18n.Catalog, *time.Location, clock.Clock) notify.Notifier) *fixture {
	t.Helper()
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	catalog, err := i18n.Load()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.Fixed(now)
	store := memory.New()

	svc := booking.NewService(store, meeting.Static{Link: "https://meet.google.com/abc"}, notifier(catalog, tokyo, clk), clk, logger, booking.Config{
		TeacherLocation: tokyo,
		Supported:       catalog.Supported,
	})
	resolver := availability.NewResolver(store, store, clk)
	manager := availability.NewManager(store, tokyo)

	hash, err := auth.HashPassword("letmein")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	issuer, err := auth.NewIssuer("test-secret", "lessonbook", time.Hour)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	mux := http.NewServeMux()
	Register(mux,
		NewPublicHandler(resolver, svc, catalog, clk, logger, PublicConfig{TeacherName: "Ustadha", PublicBaseURL: "https://lessons.example.com"}),
		NewAdminHandler(resolver, manager, svc, issuer, hash, clk, logger),
		nil,
	)
	f := &fixture{mux: mux, store: store}

	rr := f.do(t, http.MethodPost, "/api/v1/admin/login", `{"password":"letmein"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	var login loginResponse
	decode(t, rr, &login)
	f.token = login.AccessToken
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) admin(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, method, target, body, map[string]string{"Authorization": "Bearer " + f.token})
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid json %q: %v", rr.Body.String(), err)
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, rr, &body)
	return body.Error.Code
}

func bookingBody(at time.Time) string {
	b, _ := json.Marshal(map[string]string{
		"service_type":  "Tajweed",
		"student_name":  "Sara",
		"student_email": "sara@example.com",
		"start_time":    at.Format(time.RFC3339),
	})
	return string(b)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/api/v1/admin/bookings", "", nil)
	if rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "unauthorized" {
		t.Fatalf("expected 401 unauthorized, got %d %s", rr.Code, rr.Body.String())
	}
	rr = f.do(t, http.MethodGet, "/api/v1/admin/bookings", "", map[string]string{"Authorization": "Bearer nope"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rr.Code)
	}
	rr = f.do(t, http.MethodPost, "/api/v1/admin/login", `{"password":"wrong"}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rr.Code)
	}
}

func TestOpenBookAndAvailability(t *testing.T) {
	f := newFixture(t)
	half := nine.Add(30 * time.Minute)

	body := `{"start_times":["` + nine.Format(time.RFC3339) + `","` + half.Format(time.RFC3339) + `"]}`
	rr := f.admin(t, http.MethodPost, "/api/v1/admin/availability", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("open: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	var opened availability.OpenResult
	decode(t, rr, &opened)
	if opened.Opened != 2 {
		t.Fatalf("expected 2 opened, got %+v", opened)
	}

	rr = f.do(t, http.MethodPost, "/api/v1/bookings", bookingBody(nine), map[string]string{"Accept-Language": "ar-EG,ar;q=0.9"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("book: expected 201, got %d %s", rr.Code, rr.Body.String())
	}
	var created bookingItem
	decode(t, rr, &created)
	if created.PreferredLanguage != "ar" {
		t.Fatalf("expected language from Accept-Language, got %q", created.PreferredLanguage)
	}
	if created.Calendar == nil || !strings.HasPrefix(created.Calendar.Google, "https://calendar.google.com/") {
		t.Fatalf("expected calendar links, got %+v", created.Calendar)
	}
	if created.CancelURL != "https://lessons.example.com/ar/cancel/"+created.ID {
		t.Fatalf("unexpected cancel url %q", created.CancelURL)
	}

	rr = f.do(t, http.MethodGet, "/api/v1/availability?date=2025-06-01", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("availability: expected 200, got %d", rr.Code)
	}
	var slots []slotItem
	decode(t, rr, &slots)
	if len(slots) != 1 || slots[0].StartTime != half.Format(time.RFC3339) {
		t.Fatalf("expected only %s, got %+v", half, slots)
	}

	rr = f.do(t, http.MethodPost, "/api/v1/bookings", bookingBody(nine), nil)
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "slot_conflict" {
		t.Fatalf("expected 409 slot_conflict, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/api/v1/bookings", `{"student_name":"Sara"}`, nil)
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "invalid_input" {
		t.Fatalf("expected 400 invalid_input, got %d %s", rr.Code, rr.Body.String())
	}
	rr = f.do(t, http.MethodPost, "/api/v1/bookings", `{"unknown":1}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rr.Code)
	}
	rr = f.do(t, http.MethodGet, "/api/v1/bookings", "", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestCloseSkipsBookedAndForceCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.store.Open(ctx, []time.Time{nine})

	rr := f.do(t, http.MethodPost, "/api/v1/bookings", bookingBody(nine), nil)
	var created bookingItem
	decode(t, rr, &created)

	rr = f.admin(t, http.MethodDelete, "/api/v1/admin/availability?start_time="+nine.Format(time.RFC3339), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	var closed availability.CloseResult
	decode(t, rr, &closed)
	if closed.Closed != 0 || len(closed.SkippedBooked) != 1 {
		t.Fatalf("expected booked slot skipped, got %+v", closed)
	}
	if b, _ := f.store.Find(ctx, nine); b == nil {
		t.Fatal("booking must survive close")
	}

	rr = f.admin(t, http.MethodGet, "/api/v1/admin/bookings", "")
	var list []bookingItem
	decode(t, rr, &list)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("expected the booking listed, got %+v", list)
	}

	rr = f.admin(t, http.MethodDelete, "/api/v1/admin/bookings?id="+created.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("force cancel: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	rr = f.admin(t, http.MethodDelete, "/api/v1/admin/bookings?id="+created.ID, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second cancel, got %d", rr.Code)
	}
}

func TestStudentCancelTooLate(t *testing.T) {
	f := newFixture(t)
	soon := now.Add(30 * time.Minute)
	rr := f.do(t, http.MethodPost, "/api/v1/bookings", bookingBody(soon), nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("book: expected 201, got %d %s", rr.Code, rr.Body.String())
	}
	var created bookingItem
	decode(t, rr, &created)

	body, _ := json.Marshal(cancelBookingRequest{BookingID: created.ID})
	rr = f.do(t, http.MethodPost, "/api/v1/bookings/cancel", string(body), nil)
	if rr.Code != http.StatusForbidden || errorCode(t, rr) != "too_late" {
		t.Fatalf("expected 403 too_late, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestStudentCancel(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/api/v1/bookings", bookingBody(nine), nil)
	var created bookingItem
	decode(t, rr, &created)

	body, _ := json.Marshal(cancelBookingRequest{BookingID: created.ID})
	rr = f.do(t, http.MethodPost, "/api/v1/bookings/cancel", string(body), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	var resp cancelBookingResponse
	decode(t, rr, &resp)
	if resp.BookingID != created.ID || resp.Status != "cancelled" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestCalendarFile(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/api/v1/bookings", bookingBody(nine), nil)
	var created bookingItem
	decode(t, rr, &created)

	rr = f.do(t, http.MethodGet, "/api/v1/bookings/"+created.ID+"/calendar.ics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("BEGIN:VCALENDAR")) {
		t.Fatalf("expected calendar body, got %q", rr.Body.String())
	}
}

func TestAdminGrid(t *testing.T) {
	f := newFixture(t)
	_, _ = f.store.Open(context.Background(), []time.Time{nine})

	rr := f.admin(t, http.MethodGet, "/api/v1/admin/grid?from=2025-06-01&days=2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	var grid gridResponse
	decode(t, rr, &grid)
	if grid.TimeZone != "Asia/Tokyo" || len(grid.Days) != 2 || len(grid.Days[0].Cells) != 48 {
		t.Fatalf("unexpected grid shape: tz=%s days=%d", grid.TimeZone, len(grid.Days))
	}
	// 09:00Z is 18:00 in Tokyo, slot 36.
	if cell := grid.Days[0].Cells[36]; cell.State != availability.CellOpen {
		t.Fatalf("expected slot 36 open, got %+v", cell)
	}

	rr = f.admin(t, http.MethodGet, "/api/v1/admin/grid?days=0", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for days=0, got %d", rr.Code)
	}
}

// stalledSender never finishes until released and ignores ctx, like an SMTP
// server that accepted the connection and went quiet.
type stalledSender struct {
	release chan struct{}
}

func (s stalledSender) Send(context.Context, email.Message) error {
	<-s.release
	return nil
}

func TestCreateBookingDoesNotWaitForNotifications(t *testing.T) {
	sender := stalledSender{release: make(chan struct{})}
	var async *notify.Async
	f := newFixtureWith(t, func(catalog *i18n.Catalog, loc *time.Location, clk clock.Clock) notify.Notifier {
		emailer := notify.NewEmailNotifier(sender, catalog, notify.EmailConfig{
			TeacherEmail:    "teacher@example.com",
			TeacherLocation: loc,
			PublicBaseURL:   "https://lessons.example.com",
		}, clk)
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		async = notify.NewAsync(notify.NewMulti(logger, time.Minute, notify.Sink{Name: "email", Notifier: emailer}), logger)
		return async
	})
	t.Cleanup(func() {
		close(sender.release)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := async.Drain(ctx); err != nil {
			t.Errorf("drain: %v", err)
		}
	})
	h := httpx.WithTimeout(200 * time.Millisecond)(f.mux)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(bookingBody(nine)))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 while the mail server stalls, got %d %s", rr.Code, rr.Body.String())
	}
	if _, err := f.store.Find(context.Background(), nine); err != nil {
		t.Fatalf("booking must be stored: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(bookingBody(nine)))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("retry: expected 409, got %d %s", rr.Code, rr.Body.String())
	}
}
