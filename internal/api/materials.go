package api

import (
	"net/http"
	"strings"

	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/materials"
	"github.com/fieldledger/fieldledger/internal/web/response"
	"github.com/fieldledger/fieldledger/internal/web/router"
)

type stockRequest struct {
	Delta float64 `json:"delta"`
}

func (a *API) materialRoutes(r *router.Router) {
	r.Use(a.gate(appstate.Materials))

	r.Get("/", a.listMaterials)
	r.Post("/", a.createMaterial)
	r.Get("/{id}", a.getMaterial)
	r.Put("/{id}", a.updateMaterial)
	r.Delete("/{id}", a.deleteMaterial)
	r.Post("/{id}/stock", a.adjustStock)
}

func (a *API) listMaterials(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Materials.List(r.Context(), accountID(r), strings.TrimSpace(r.URL.Query().Get("search")))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*materials.Material{}
	}
	response.RenderList(w, list, len(list))
}

func (a *API) createMaterial(w http.ResponseWriter, r *http.Request) {
	var in materials.Input
	if !decode(w, r, &in) {
		return
	}
	m, err := a.svc.Materials.Create(r.Context(), accountID(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderCreated(w, m)
}

func (a *API) getMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	m, err := a.svc.Materials.Get(r.Context(), accountID(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, m)
}

func (a *API) updateMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in materials.Input
	if !decode(w, r, &in) {
		return
	}
	m, err := a.svc.Materials.Update(r.Context(), accountID(r), id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, m)
}

func (a *API) deleteMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := a.svc.Materials.Delete(r.Context(), accountID(r), id); err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderNoContent(w)
}

func (a *API) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req stockRequest
	if !decode(w, r, &req) {
		return
	}
	qty, err := a.svc.Materials.AdjustStock(r.Context(), accountID(r), id, req.Delta)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, map[string]float64{"stock_quantity": qty})
}
