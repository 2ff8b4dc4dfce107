package api

import (
	"net/http"

	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/referral"
	"github.com/fieldledger/fieldledger/internal/web/response"
	"github.com/fieldledger/fieldledger/internal/web/router"
)

func (a *API) referralRoutes(r *router.Router) {
	r.Use(a.gate(appstate.Referrals))

	r.Get("/", a.listReferrals)
	r.Get("/stats", a.referralStats)
	r.Get("/commissions", a.listCommissions)
}

func (a *API) referralStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	acct, err := a.svc.Accounts.Get(ctx, accountID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	stats, err := a.svc.Referrals.Stats(ctx, acct.ID, acct.IsAffiliate)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, stats)
}

func (a *API) listReferrals(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Referrals.List(r.Context(), accountID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*referral.Referral{}
	}
	response.RenderList(w, list, len(list))
}

func (a *API) listCommissions(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Referrals.Commissions(r.Context(), accountID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*referral.Commission{}
	}
	response.RenderList(w, list, len(list))
}
