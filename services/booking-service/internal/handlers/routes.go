package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
)

// Register mounts the public and admin routes on mux. writeLimit, when set,
// wraps the public endpoints that create or delete state.
func Register(mux *http.ServeMux, pub *PublicHandler, admin *AdminHandler, writeLimit httpx.Middleware) {
	limited := func(h http.Handler) http.Handler { return httpx.Chain(h, writeLimit) }

	mux.Handle("/api/v1/availability", httpx.OnlyMethods(http.HandlerFunc(pub.Availability), http.MethodGet))
	mux.Handle("/api/v1/bookings", limited(httpx.OnlyMethods(http.HandlerFunc(pub.Create), http.MethodPost)))
	mux.Handle("/api/v1/bookings/cancel", limited(httpx.OnlyMethods(http.HandlerFunc(pub.Cancel), http.MethodPost)))
	mux.Handle("/api/v1/bookings/{id}/calendar.ics", httpx.OnlyMethods(http.HandlerFunc(pub.CalendarFile), http.MethodGet))

	mux.Handle("/api/v1/admin/login", limited(httpx.OnlyMethods(http.HandlerFunc(admin.Login), http.MethodPost)))
	mux.Handle("/api/v1/admin/availability", httpx.OnlyMethods(admin.RequireAdmin(http.HandlerFunc(admin.Availability)),
		http.MethodGet, http.MethodPost, http.MethodDelete))
	mux.Handle("/api/v1/admin/grid", httpx.OnlyMethods(admin.RequireAdmin(http.HandlerFunc(admin.Grid)), http.MethodGet))
	mux.Handle("/api/v1/admin/bookings", httpx.OnlyMethods(admin.RequireAdmin(http.HandlerFunc(admin.Bookings)),
		http.MethodGet, http.MethodDelete))
}
