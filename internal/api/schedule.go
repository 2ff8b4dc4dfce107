package api

import (
	"net/http"
	"time"

	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/schedule"
	"github.com/fieldledger/fieldledger/internal/web/request"
	"github.com/fieldledger/fieldledger/internal/web/response"
	"github.com/fieldledger/fieldledger/internal/web/router"
)

const defaultScheduleWindow = 7 * 24 * time.Hour

type statusRequest struct {
	Status schedule.Status `json:"status"`
}

func (a *API) scheduleRoutes(r *router.Router) {
	r.Use(a.gate(appstate.Schedule))

	r.Get("/", a.listAppointments)
	r.Post("/", a.createAppointment)
	r.Get("/{id}", a.getAppointment)
	r.Put("/{id}", a.rescheduleAppointment)
	r.Delete("/{id}", a.deleteAppointment)
	r.Post("/{id}/status", a.setAppointmentStatus)
}

// listAppointments returns appointments in [from, to). The window defaults to
// the next seven days.
func (a *API) listAppointments(w http.ResponseWriter, r *http.Request) {
	from, ok, err := request.QueryTime(r, "from")
	if err != nil {
		badRequest(w, err)
		return
	}
	if !ok {
		from = a.now().UTC()
	}
	to, ok, err := request.QueryTime(r, "to")
	if err != nil {
		badRequest(w, err)
		return
	}
	if !ok {
		to = from.Add(defaultScheduleWindow)
	}
	if !to.After(from) {
		response.RenderBadRequest(w, "to must be after from")
		return
	}

	list, err := a.svc.Schedule.Range(r.Context(), accountID(r), from, to)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*schedule.Appointment{}
	}
	response.RenderList(w, list, len(list))
}

func (a *API) createAppointment(w http.ResponseWriter, r *http.Request) {
	var in schedule.Input
	if !decode(w, r, &in) {
		return
	}
	appt, err := a.svc.Schedule.Create(r.Context(), accountID(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderCreated(w, appt)
}

func (a *API) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	appt, err := a.svc.Schedule.Get(r.Context(), accountID(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, appt)
}

func (a *API) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in schedule.Input
	if !decode(w, r, &in) {
		return
	}
	appt, err := a.svc.Schedule.Reschedule(r.Context(), accountID(r), id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, appt)
}

func (a *API) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := a.svc.Schedule.Delete(r.Context(), accountID(r), id); err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderNoContent(w)
}

func (a *API) setAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		response.RenderBadRequest(w, "invalid status")
		return
	}
	appt, err := a.svc.Schedule.SetStatus(r.Context(), accountID(r), id, req.Status)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, appt)
}
