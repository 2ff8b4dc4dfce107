package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/calendar"
	"github.com/fieldledger/fieldledger/internal/mileage"
	"github.com/fieldledger/fieldledger/internal/web/request"
	"github.com/fieldledger/fieldledger/internal/web/response"
	"github.com/fieldledger/fieldledger/internal/web/router"
)

func (a *API) mileageRoutes(r *router.Router) {
	r.Use(a.gate(appstate.Mileage))

	r.Get("/", a.listTrips)
	r.Post("/", a.logTrip)
	r.Get("/rates", a.mileageRates)
	r.Get("/{id}", a.getTrip)
	r.Delete("/{id}", a.deleteTrip)

	r.Group(func(pro *router.Router) {
		pro.Use(a.gate(appstate.MileagePro))
		pro.Get("/summary/{year}", a.mileageSummary)
		pro.Get("/export/{year}", a.exportMileage)
	})
}

func (a *API) listTrips(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	f := mileage.Filter{Limit: limit, Offset: offset}

	from, ok, err := request.QueryDate(r, "from")
	if err != nil {
		badRequest(w, err)
		return
	}
	if ok {
		f.From = calendar.DateOf(from)
	}
	to, ok, err := request.QueryDate(r, "to")
	if err != nil {
		badRequest(w, err)
		return
	}
	if ok {
		f.To = calendar.DateOf(to)
	}

	trips, total, err := a.svc.Mileage.List(r.Context(), accountID(r), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	views := make([]mileage.TripView, len(trips))
	for i, t := range trips {
		views[i] = mileage.NewTripView(t)
	}
	response.RenderList(w, views, total)
}

func (a *API) logTrip(w http.ResponseWriter, r *http.Request) {
	var in mileage.Input
	if !decode(w, r, &in) {
		return
	}
	trip, err := a.svc.Mileage.Log(r.Context(), accountID(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderCreated(w, mileage.NewTripView(trip))
}

func (a *API) getTrip(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	trip, err := a.svc.Mileage.Get(r.Context(), accountID(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, mileage.NewTripView(trip))
}

func (a *API) deleteTrip(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := a.svc.Mileage.Delete(r.Context(), accountID(r), id); err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderNoContent(w)
}

func (a *API) mileageRates(w http.ResponseWriter, r *http.Request) {
	response.RenderOK(w, a.svc.Mileage.Rates())
}

func (a *API) mileageSummary(w http.ResponseWriter, r *http.Request) {
	year, err := request.IntParam(r, "year")
	if err != nil {
		badRequest(w, err)
		return
	}
	summary, err := a.svc.Mileage.YearSummary(r.Context(), accountID(r), year)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, summary)
}

// exportMileage renders the year's trips as CSV. The file is built in memory
// so a failure can still be reported as JSON.
func (a *API) exportMileage(w http.ResponseWriter, r *http.Request) {
	year, err := request.IntParam(r, "year")
	if err != nil {
		badRequest(w, err)
		return
	}
	var buf bytes.Buffer
	if err := a.svc.Mileage.ExportCSV(r.Context(), accountID(r), year, &buf); err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="mileage-%d.csv"`, year))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
