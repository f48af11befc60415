package handlers

import (
	"net/http"

	"github.com/zapagenda/zapagenda/libs/httpx"
)

// Routes mounts the booking API. Owner routes run behind owner, public
// routes behind public.
type Routes struct {
	Appointments *AppointmentHandler
	Calendar     *CalendarHandler
	Catalog      *CatalogHandler
	Owner        httpx.Middleware
	Public       httpx.Middleware
}

func (rt Routes) Register(mux *http.ServeMux) {
	owner := func(h http.HandlerFunc) http.Handler { return rt.Owner(h) }
	public := func(h http.HandlerFunc) http.Handler { return rt.Public(h) }

	mux.Handle("POST /api/v1/appointments", owner(rt.Appointments.Create))
	mux.Handle("GET /api/v1/appointments", owner(rt.Appointments.List))
	mux.Handle("GET /api/v1/appointments.ics", owner(rt.Appointments.ICS))
	mux.Handle("GET /api/v1/appointments/{id}", owner(rt.Appointments.Get))
	mux.Handle("PATCH /api/v1/appointments/{id}", owner(rt.Appointments.Update))
	mux.Handle("PUT /api/v1/appointments/{id}", owner(rt.Appointments.Update))
	mux.Handle("DELETE /api/v1/appointments/{id}", owner(rt.Appointments.Cancel))

	mux.Handle("GET /api/v1/calendar/day", owner(rt.Calendar.Day))
	mux.Handle("GET /api/v1/calendar/week", owner(rt.Calendar.Week))

	mux.Handle("GET /api/v1/services", owner(rt.Catalog.ListServices))
	mux.Handle("POST /api/v1/services", owner(rt.Catalog.CreateService))
	mux.Handle("GET /api/v1/services/{id}", owner(rt.Catalog.GetService))
	mux.Handle("PUT /api/v1/services/{id}", owner(rt.Catalog.UpdateService))
	mux.Handle("DELETE /api/v1/services/{id}", owner(rt.Catalog.DeactivateService))
	mux.Handle("GET /api/v1/business/profile", owner(rt.Catalog.GetProfile))
	mux.Handle("PUT /api/v1/business/profile", owner(rt.Catalog.UpdateProfile))

	mux.Handle("POST /api/v1/public/book", public(rt.Appointments.PublicBook))
	mux.Handle("GET /api/v1/public/slots", public(rt.Calendar.PublicSlots))
}
