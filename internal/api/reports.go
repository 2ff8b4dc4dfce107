package api

import (
	"net/http"

	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/calendar"
	"github.com/fieldledger/fieldledger/internal/web/request"
	"github.com/fieldledger/fieldledger/internal/web/response"
	"github.com/fieldledger/fieldledger/internal/web/router"
)

func (a *API) reportRoutes(r *router.Router) {
	r.Use(a.gate(appstate.FinancialReports))
	r.Get("/summary", a.reportSummary)
}

// reportSummary covers [from, to). It defaults to the current calendar year.
func (a *API) reportSummary(w http.ResponseWriter, r *http.Request) {
	period := calendar.Year(a.now().Year())

	from, ok, err := request.QueryDate(r, "from")
	if err != nil {
		badRequest(w, err)
		return
	}
	if ok {
		period.From = calendar.DateOf(from)
	}
	to, ok, err := request.QueryDate(r, "to")
	if err != nil {
		badRequest(w, err)
		return
	}
	if ok {
		period.To = calendar.DateOf(to)
	}
	if !period.Valid() {
		response.RenderBadRequest(w, "to must be after from")
		return
	}

	summary, err := a.svc.Reports.Summary(r.Context(), accountID(r), period)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, summary)
}
