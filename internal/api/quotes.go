package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/quotes"
	"github.com/fieldledger/fieldledger/internal/web/response"
	"github.com/fieldledger/fieldledger/internal/web/router"
)

type quoteTransition func(ctx context.Context, accountID, id uuid.UUID) (*quotes.Quote, error)

func (a *API) quoteRoutes(r *router.Router) {
	r.Use(a.gate(appstate.Quotes))

	r.Get("/", a.listQuotes)
	r.Post("/", a.createQuote)
	r.Get("/{id}", a.getQuote)
	r.Put("/{id}", a.updateQuote)
	r.Delete("/{id}", a.deleteQuote)
	r.Post("/{id}/send", a.quoteAction(func(ctx context.Context, acct, id uuid.UUID) (*quotes.Quote, error) {
		return a.svc.Quotes.Send(ctx, acct, id)
	}))
	r.Post("/{id}/accept", a.quoteAction(func(ctx context.Context, acct, id uuid.UUID) (*quotes.Quote, error) {
		return a.svc.Quotes.Accept(ctx, acct, id)
	}))
	r.Post("/{id}/decline", a.quoteAction(func(ctx context.Context, acct, id uuid.UUID) (*quotes.Quote, error) {
		return a.svc.Quotes.Decline(ctx, acct, id)
	}))
	r.Post("/{id}/expire", a.quoteAction(func(ctx context.Context, acct, id uuid.UUID) (*quotes.Quote, error) {
		return a.svc.Quotes.Expire(ctx, acct, id)
	}))
	r.With(a.gate(appstate.Invoices)).Post("/{id}/convert", a.convertQuote)
}

func (a *API) listQuotes(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	status := quotes.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		response.RenderBadRequest(w, "invalid status")
		return
	}
	clientID, ok := uuidQuery(w, r, "client_id")
	if !ok {
		return
	}
	list, total, err := a.svc.Quotes.List(r.Context(), accountID(r), quotes.Filter{
		Status:   status,
		ClientID: clientID,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderList(w, list, total)
}

func (a *API) createQuote(w http.ResponseWriter, r *http.Request) {
	var in quotes.Input
	if !decode(w, r, &in) {
		return
	}
	q, err := a.svc.Quotes.Create(r.Context(), accountID(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderCreated(w, q)
}

func (a *API) getQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	q, err := a.svc.Quotes.Get(r.Context(), accountID(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, q)
}

func (a *API) updateQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in quotes.Input
	if !decode(w, r, &in) {
		return
	}
	q, err := a.svc.Quotes.Update(r.Context(), accountID(r), id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, q)
}

func (a *API) deleteQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := a.svc.Quotes.Delete(r.Context(), accountID(r), id); err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderNoContent(w)
}

func (a *API) quoteAction(fn quoteTransition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		q, err := fn(r.Context(), accountID(r), id)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		response.RenderOK(w, q)
	}
}

func (a *API) convertQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	q, inv, err := a.svc.Quotes.Convert(r.Context(), accountID(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderCreated(w, map[string]interface{}{"quote": q, "invoice": inv})
}
