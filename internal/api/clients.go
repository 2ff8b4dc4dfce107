package api

import (
	"net/http"
	"strings"

	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/clients"
	"github.com/fieldledger/fieldledger/internal/web/response"
	"github.com/fieldledger/fieldledger/internal/web/router"
)

func (a *API) clientRoutes(r *router.Router) {
	r.Use(a.gate(appstate.Clients))

	r.Get("/", a.listClients)
	r.Post("/", a.createClient)
	r.Get("/{id}", a.getClient)
	r.Put("/{id}", a.updateClient)
	r.Delete("/{id}", a.deleteClient)
	r.Post("/{id}/archive", a.archiveClient)
	r.Post("/{id}/restore", a.restoreClient)
}

func (a *API) listClients(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	list, total, err := a.svc.Clients.List(r.Context(), accountID(r), clients.Filter{
		Search:          strings.TrimSpace(q.Get("search")),
		IncludeArchived: q.Get("include_archived") == "true",
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderList(w, list, total)
}

func (a *API) createClient(w http.ResponseWriter, r *http.Request) {
	var in clients.Input
	if !decode(w, r, &in) {
		return
	}
	c, err := a.svc.Clients.Create(r.Context(), accountID(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderCreated(w, c)
}

func (a *API) getClient(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	c, err := a.svc.Clients.Get(r.Context(), accountID(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, c)
}

func (a *API) updateClient(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in clients.Input
	if !decode(w, r, &in) {
		return
	}
	c, err := a.svc.Clients.Update(r.Context(), accountID(r), id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, c)
}

func (a *API) deleteClient(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := a.svc.Clients.Delete(r.Context(), accountID(r), id); err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderNoContent(w)
}

func (a *API) archiveClient(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := a.svc.Clients.Archive(r.Context(), accountID(r), id); err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderNoContent(w)
}

func (a *API) restoreClient(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := a.svc.Clients.Restore(r.Context(), accountID(r), id); err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderNoContent(w)
}
