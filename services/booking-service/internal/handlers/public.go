package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/slotclock"
)

// LanguageMatcher picks a supported language for an Accept-Language value.
type LanguageMatcher interface {
	Match(acceptLanguage string) string
}

type PublicConfig struct {
	TeacherName   string
	TeacherEmail  string
	PublicBaseURL string
}

// PublicHandler serves the student-facing booking API.
type PublicHandler struct {
	resolver  *availability.Resolver
	bookings  *booking.Service
	languages LanguageMatcher
	clock     clock.Clock
	logger    *slog.Logger
	cfg       PublicConfig
}

func NewPublicHandler(resolver *availability.Resolver, bookings *booking.Service, languages LanguageMatcher, clk clock.Clock, logger *slog.Logger, cfg PublicConfig) *PublicHandler {
	if clk == nil {
		clk = clock.System{}
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &PublicHandler{
		resolver:  resolver,
		bookings:  bookings,
		languages: languages,
		clock:     clk,
		logger:    logger,
		cfg:       cfg,
	}
}

// Availability answers GET /api/v1/availability?start&end or ?date[&tz].
func (h *PublicHandler) Availability(w http.ResponseWriter, r *http.Request) {
	rng, err := h.availabilityRange(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	slots, err := h.resolver.Available(r.Context(), rng)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slotItems(slots))
}

func (h *PublicHandler) availabilityRange(r *http.Request) (model.Range, error) {
	q := r.URL.Query()
	if date := strings.TrimSpace(q.Get("date")); date != "" {
		loc := time.UTC
		if tz := strings.TrimSpace(q.Get("tz")); tz != "" {
			l, err := time.LoadLocation(tz)
			if err != nil {
				return model.Range{}, apperror.InvalidInput("unknown time zone " + tz)
			}
			loc = l
		}
		day, err := slotclock.ParseDate(date, loc)
		if err != nil {
			return model.Range{}, apperror.InvalidInput("date must be YYYY-MM-DD")
		}
		y, m, d := day.Date()
		next := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
		return model.Range{Start: day, End: next.Add(-time.Microsecond)}, nil
	}
	rng, ok, err := parseRange(r)
	if err != nil {
		return model.Range{}, err
	}
	if !ok {
		return model.Range{}, apperror.InvalidInput("either date or start and end are required")
	}
	return rng, nil
}

type createBookingRequest struct {
	ServiceType       string `json:"service_type"`
	StudentName       string `json:"student_name"`
	StudentEmail      string `json:"student_email"`
	Message           string `json:"message"`
	StartTime         string `json:"start_time"`
	StudentTimezone   string `json:"student_timezone"`
	PreferredLanguage string `json:"preferred_language"`
}

// Create answers POST /api/v1/bookings.
func (h *PublicHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadJSON(w)
		return
	}

	var start time.Time
	if strings.TrimSpace(req.StartTime) != "" {
		t, err := parseInstant("start_time", req.StartTime)
		if err != nil {
			writeAppError(w, r, h.logger, err)
			return
		}
		start = t
	}
	lang := strings.TrimSpace(req.PreferredLanguage)
	if lang == "" && h.languages != nil {
		lang = h.languages.Match(r.Header.Get("Accept-Language"))
	}

	b, err := h.bookings.Book(r.Context(), booking.Request{
		ServiceType:       req.ServiceType,
		StudentName:       req.StudentName,
		StudentEmail:      req.StudentEmail,
		Message:           req.Message,
		StartTime:         start,
		StudentTimezone:   req.StudentTimezone,
		PreferredLanguage: lang,
	})
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	item := toBookingItem(*b)
	links := calendar.LinksFor(calendar.ForBooking(*b, h.cfg.TeacherName, h.cfg.TeacherEmail), h.clock.Now(), h.icsURL(b.ID))
	item.Calendar = &links
	if h.cfg.PublicBaseURL != "" {
		item.CancelURL = notify.CancelURL(h.cfg.PublicBaseURL, *b)
	}
	httpx.WriteJSON(w, http.StatusCreated, item)
}

func (h *PublicHandler) icsURL(id string) string {
	if h.cfg.PublicBaseURL == "" {
		return ""
	}
	return notify.ICSURL(h.cfg.PublicBaseURL, id)
}

// CalendarFile answers GET /api/v1/bookings/{id}/calendar.ics.
func (h *PublicHandler) CalendarFile(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	body := calendar.ICS(calendar.ForBooking(*b, h.cfg.TeacherName, h.cfg.TeacherEmail), h.clock.Now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="lesson.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

type cancelBookingRequest struct {
	BookingID string `json:"booking_id"`
}

type cancelBookingResponse struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

// Cancel answers POST /api/v1/bookings/cancel for the student.
func (h *PublicHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadJSON(w)
		return
	}
	b, err := h.bookings.CancelByStudent(r.Context(), req.BookingID)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cancelBookingResponse{BookingID: b.ID, Status: "cancelled"})
}
