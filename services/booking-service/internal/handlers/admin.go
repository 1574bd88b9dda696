package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/auth"
	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/slotclock"
)

const (
	defaultGridDays = 14
	maxGridDays     = 62
)

type principalKey struct{}

func withPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the admin attached by RequireAdmin.
func PrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

// AdminHandler serves the teacher's dashboard API.
type AdminHandler struct {
	resolver     *availability.Resolver
	manager      *availability.Manager
	bookings     *booking.Service
	issuer       *auth.Issuer
	passwordHash string
	clock        clock.Clock
	logger       *slog.Logger
}

func NewAdminHandler(resolver *availability.Resolver, manager *availability.Manager, bookings *booking.Service, issuer *auth.Issuer, passwordHash string, clk clock.Clock, logger *slog.Logger) *AdminHandler {
	if clk == nil {
		clk = clock.System{}
	}
	return &AdminHandler{
		resolver:     resolver,
		manager:      manager,
		bookings:     bookings,
		issuer:       issuer,
		passwordHash: strings.TrimSpace(passwordHash),
		clock:        clk,
		logger:       logger,
	}
}

// RequireAdmin rejects requests without a valid admin bearer token.
func (h *AdminHandler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeAppError(w, r, h.logger, apperror.New(apperror.KindUnauthorized, "missing bearer token"))
			return
		}
		p, err := h.issuer.Verify(token)
		if err != nil || !p.IsAdmin() {
			writeAppError(w, r, h.logger, apperror.New(apperror.KindUnauthorized, "invalid or expired token"))
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
}

// Login answers POST /api/v1/admin/login.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadJSON(w)
		return
	}
	if h.passwordHash == "" {
		writeAppError(w, r, h.logger, apperror.New(apperror.KindUnauthorized, "admin login is not configured"))
		return
	}
	if err := auth.CheckPassword(h.passwordHash, req.Password); err != nil {
		h.logger.Warn("admin login rejected", "request_id", httpx.RequestIDFromContext(r.Context()))
		writeAppError(w, r, h.logger, apperror.New(apperror.KindUnauthorized, "invalid password"))
		return
	}
	token, exp, err := h.issuer.Sign("teacher", auth.RoleAdmin)
	if err != nil {
		writeAppError(w, r, h.logger, apperror.Infrastructure("sign admin token", err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   exp.UTC().Format(time.RFC3339),
	})
}

// Availability dispatches /api/v1/admin/availability by method.
func (h *AdminHandler) Availability(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.snapshot(w, r)
	case http.MethodPost:
		h.open(w, r)
	case http.MethodDelete:
		h.close(w, r)
	}
}

type snapshotResponse struct {
	Availabilities []string      `json:"availabilities"`
	Bookings       []bookingItem `json:"bookings"`
}

func (h *AdminHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	rng, ok, err := parseRange(r)
	if err == nil && !ok {
		err = apperror.InvalidInput("start and end are required")
	}
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	snap, err := h.resolver.Grid(r.Context(), rng)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	open := make([]string, 0, len(snap.Open))
	for _, t := range snap.Open {
		open = append(open, t.UTC().Format(time.RFC3339))
	}
	httpx.WriteJSON(w, http.StatusOK, snapshotResponse{Availabilities: open, Bookings: bookingItems(snap.Bookings)})
}

// slotSelection is either an explicit list or a drag over one local day.
type slotSelection struct {
	StartTimes []string `json:"start_times"`
	Date       string   `json:"date"`
	FromSlot   *int     `json:"from_slot"`
	ToSlot     *int     `json:"to_slot"`
}

func (h *AdminHandler) selection(r *http.Request) ([]time.Time, error) {
	if raw := strings.TrimSpace(r.URL.Query().Get("start_time")); raw != "" {
		t, err := parseInstant("start_time", raw)
		if err != nil {
			return nil, err
		}
		return []time.Time{t}, nil
	}
	var sel slotSelection
	if err := httpx.DecodeJSON(r, &sel); err != nil {
		return nil, apperror.InvalidInput("invalid json body")
	}
	if sel.Date != "" {
		if sel.FromSlot == nil || sel.ToSlot == nil {
			return nil, apperror.InvalidInput("from_slot and to_slot are required with date")
		}
		return h.manager.Span(sel.Date, *sel.FromSlot, *sel.ToSlot)
	}
	out := make([]time.Time, 0, len(sel.StartTimes))
	for _, raw := range sel.StartTimes {
		t, err := parseInstant("start_times", raw)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (h *AdminHandler) open(w http.ResponseWriter, r *http.Request) {
	instants, err := h.selection(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	res, err := h.manager.Open(r.Context(), instants)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	h.logger.Info("slots opened", "requested", res.Requested, "opened", res.Opened)
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *AdminHandler) close(w http.ResponseWriter, r *http.Request) {
	instants, err := h.selection(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	res, err := h.manager.Close(r.Context(), instants)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	h.logger.Info("slots closed", "requested", res.Requested, "closed", res.Closed, "skipped_booked", len(res.SkippedBooked))
	httpx.WriteJSON(w, http.StatusOK, res)
}

type gridResponse struct {
	TimeZone string                `json:"time_zone"`
	Days     []availability.DayRow `json:"days"`
}

// Grid answers GET /api/v1/admin/grid?from=YYYY-MM-DD&days=N.
func (h *AdminHandler) Grid(w http.ResponseWriter, r *http.Request) {
	loc := h.manager.Location()
	q := r.URL.Query()

	from := h.clock.Now().In(loc)
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		d, err := slotclock.ParseDate(raw, loc)
		if err != nil {
			writeAppError(w, r, h.logger, apperror.InvalidInput("from must be YYYY-MM-DD"))
			return
		}
		from = d
	}
	days := defaultGridDays
	if raw := strings.TrimSpace(q.Get("days")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxGridDays {
			writeAppError(w, r, h.logger, apperror.InvalidInput("days must be between 1 and "+strconv.Itoa(maxGridDays)))
			return
		}
		days = n
	}

	snap, err := h.resolver.Grid(r.Context(), availability.GridRange(from, days, loc))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, gridResponse{
		TimeZone: loc.String(),
		Days:     availability.BuildGrid(snap, from, days, loc),
	})
}

// Bookings dispatches /api/v1/admin/bookings: GET lists, DELETE force-cancels.
func (h *AdminHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listBookings(w, r)
	case http.MethodDelete:
		h.forceCancel(w, r)
	}
}

func (h *AdminHandler) listBookings(w http.ResponseWriter, r *http.Request) {
	rng, ok, err := parseRange(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	var filter *model.Range
	if ok {
		filter = &rng
	}
	list, err := h.bookings.List(r.Context(), filter)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bookingItems(list))
}

func (h *AdminHandler) forceCancel(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	b, err := h.bookings.CancelByAdmin(r.Context(), p, r.URL.Query().Get("id"))
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cancelBookingResponse{BookingID: b.ID, Status: "cancelled"})
}
