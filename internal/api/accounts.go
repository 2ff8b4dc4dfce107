package api

import (
	"net/http"
	"strings"

	"github.com/fieldledger/fieldledger/internal/accounts"
	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/web/response"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) signup(w http.ResponseWriter, r *http.Request) {
	var in accounts.SignupInput
	if !decode(w, r, &in) {
		return
	}
	session, err := a.svc.Accounts.Signup(r.Context(), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderCreated(w, session)
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if !decode(w, r, &in) {
		return
	}
	session, err := a.svc.Accounts.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, session)
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	acct, err := a.svc.Accounts.Get(r.Context(), accountID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, acct)
}

func (a *API) completeOnboarding(w http.ResponseWriter, r *http.Request) {
	acct, err := a.svc.Accounts.CompleteOnboarding(r.Context(), accountID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, acct)
}

func (a *API) updateSetup(w http.ResponseWriter, r *http.Request) {
	var in accounts.SetupInput
	if !decode(w, r, &in) {
		return
	}
	acct, err := a.svc.Accounts.UpdateSetup(r.Context(), accountID(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, acct)
}

// appState returns the resolved state, capabilities and quota usage
func (a *API) appState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := accountID(r)

	activeClients, err := a.svc.Clients.CountActive(ctx, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	invoicesThisMonth, err := a.svc.Invoices.CountThisMonth(ctx, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	view, err := a.svc.AppState.View(ctx, id, map[appstate.Quota]int{
		appstate.QuotaClients:          activeClients,
		appstate.QuotaInvoicesPerMonth: invoicesThisMonth,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, view)
}

func (a *API) navigate(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		response.RenderBadRequest(w, "path is required")
		return
	}
	decision, err := a.svc.AppState.Navigate(r.Context(), accountID(r), path)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, decision)
}

func (a *API) features(w http.ResponseWriter, r *http.Request) {
	flags := []string{}
	if a.svc.Features != nil {
		if enabled := a.svc.Features.EnabledFlags(r.Context(), accountID(r)); enabled != nil {
			flags = enabled
		}
	}
	response.RenderOK(w, map[string][]string{"flags": flags})
}
