package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
)

// writeAppError maps err onto the error envelope. Infrastructure causes are
// logged, never returned.
func writeAppError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code, msg := apperror.Public(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()), "err", err)
	}
	httpx.WriteError(w, status, code, msg)
}

func writeBadJSON(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusBadRequest, string(apperror.KindInvalidInput), "invalid json body")
}

func parseInstant(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, apperror.InvalidInput(field + " must be an RFC3339 timestamp")
	}
	return t, nil
}

// parseRange reads ?start&end. ok is false when both are absent.
func parseRange(r *http.Request) (rng model.Range, ok bool, err error) {
	q := r.URL.Query()
	start, end := q.Get("start"), q.Get("end")
	if start == "" && end == "" {
		return model.Range{}, false, nil
	}
	if start == "" || end == "" {
		return model.Range{}, false, apperror.InvalidInput("start and end are both required")
	}
	if rng.Start, err = parseInstant("start", start); err != nil {
		return model.Range{}, false, err
	}
	if rng.End, err = parseInstant("end", end); err != nil {
		return model.Range{}, false, err
	}
	if !rng.Valid() {
		return model.Range{}, false, apperror.InvalidInput("start must not be after end")
	}
	return rng, true, nil
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func slotItems(instants []time.Time) []slotItem {
	out := make([]slotItem, 0, len(instants))
	for _, t := range instants {
		out = append(out, slotItem{
			StartTime: t.UTC().Format(time.RFC3339),
			EndTime:   t.Add(model.SlotDuration).UTC().Format(time.RFC3339),
		})
	}
	return out
}

type bookingItem struct {
	ID                string          `json:"id"`
	StartTime         string          `json:"start_time"`
	EndTime           string          `json:"end_time"`
	ServiceType       string          `json:"service_type"`
	StudentName       string          `json:"student_name"`
	StudentEmail      string          `json:"student_email"`
	Message           string          `json:"message,omitempty"`
	StudentTimezone   string          `json:"student_timezone"`
	MeetingLink       string          `json:"meeting_link"`
	PreferredLanguage string          `json:"preferred_language"`
	CreatedAt         string          `json:"created_at"`
	Calendar          *calendar.Links `json:"calendar,omitempty"`
	CancelURL         string          `json:"cancel_url,omitempty"`
}

func toBookingItem(b model.Booking) bookingItem {
	return bookingItem{
		ID:                b.ID,
		StartTime:         b.StartTime.UTC().Format(time.RFC3339),
		EndTime:           b.EndTime().UTC().Format(time.RFC3339),
		ServiceType:       b.ServiceType,
		StudentName:       b.StudentName,
		StudentEmail:      b.StudentEmail,
		Message:           b.Message,
		StudentTimezone:   b.StudentTimezone,
		MeetingLink:       b.MeetingLink,
		PreferredLanguage: b.PreferredLanguage,
		CreatedAt:         b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func bookingItems(bs []model.Booking) []bookingItem {
	out := make([]bookingItem, 0, len(bs))
	for _, b := range bs {
		out = append(out, toBookingItem(b))
	}
	return out
}
