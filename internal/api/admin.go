package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldledger/fieldledger/internal/web/middleware"
	"github.com/fieldledger/fieldledger/internal/web/profiling"
	"github.com/fieldledger/fieldledger/internal/web/response"
	"github.com/fieldledger/fieldledger/internal/web/router"
)

func (a *API) adminRoutes(r *router.Router) {
	r.Use(middleware.RequireAdmin())

	r.Get("/accounts", a.listAccounts)
	r.Put("/accounts/{id}/flags/{flag}", a.setAccountFlag)
	r.Put("/accounts/{id}/affiliate", a.setAffiliate)
	r.Post("/accounts/{id}/payout", a.payoutCommissions)
	r.Put("/preview", a.setPreview)

	profiling.Register(r, a.cfg.Profiling)
}

func (a *API) listAccounts(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	list, total, err := a.svc.Accounts.List(r.Context(), limit, offset)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderList(w, list, total)
}

func (a *API) setAccountFlag(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	on, ok := decodeToggle(w, r)
	if !ok {
		return
	}
	acct, err := a.svc.Accounts.SetFeatureFlag(r.Context(), id, chi.URLParam(r, "flag"), on)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, acct)
}

func (a *API) setAffiliate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	on, ok := decodeToggle(w, r)
	if !ok {
		return
	}
	acct, err := a.svc.Accounts.SetAffiliate(r.Context(), id, on)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, acct)
}

func (a *API) payoutCommissions(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	payout, err := a.svc.Referrals.PayoutCommissions(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, payout)
}

// setPreview toggles preview mode for the calling administrator
func (a *API) setPreview(w http.ResponseWriter, r *http.Request) {
	on, ok := decodeToggle(w, r)
	if !ok {
		return
	}
	acct, err := a.svc.Accounts.SetPreview(r.Context(), accountID(r), on)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, acct)
}
