package api

import (
	"net/http"

	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/invoices"
	"github.com/fieldledger/fieldledger/internal/web/response"
	"github.com/fieldledger/fieldledger/internal/web/router"
)

func (a *API) invoiceRoutes(r *router.Router) {
	r.Use(a.gate(appstate.Invoices))

	r.Get("/", a.listInvoices)
	r.Post("/", a.createInvoice)
	r.Get("/{id}", a.getInvoice)
	r.Put("/{id}", a.updateInvoice)
	r.Delete("/{id}", a.deleteInvoice)
	r.Post("/{id}/send", a.sendInvoice)
	r.Post("/{id}/void", a.voidInvoice)
	r.Get("/{id}/payments", a.listPayments)
	r.Post("/{id}/payments", a.recordPayment)
}

func (a *API) listInvoices(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	status := invoices.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		response.RenderBadRequest(w, "invalid status")
		return
	}
	clientID, ok := uuidQuery(w, r, "client_id")
	if !ok {
		return
	}
	list, total, err := a.svc.Invoices.List(r.Context(), accountID(r), invoices.Filter{
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

func (a *API) createInvoice(w http.ResponseWriter, r *http.Request) {
	var in invoices.Input
	if !decode(w, r, &in) {
		return
	}
	inv, err := a.svc.Invoices.Create(r.Context(), accountID(r), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderCreated(w, inv)
}

func (a *API) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	inv, err := a.svc.Invoices.Get(r.Context(), accountID(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, inv)
}

func (a *API) updateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in invoices.Input
	if !decode(w, r, &in) {
		return
	}
	inv, err := a.svc.Invoices.Update(r.Context(), accountID(r), id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, inv)
}

func (a *API) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := a.svc.Invoices.Delete(r.Context(), accountID(r), id); err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderNoContent(w)
}

func (a *API) sendInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	inv, err := a.svc.Invoices.Send(r.Context(), accountID(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, inv)
}

func (a *API) voidInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	inv, err := a.svc.Invoices.Void(r.Context(), accountID(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, inv)
}

func (a *API) listPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	payments, err := a.svc.Invoices.Payments(r.Context(), accountID(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if payments == nil {
		payments = []*invoices.Payment{}
	}
	response.RenderList(w, payments, len(payments))
}

func (a *API) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in invoices.PaymentInput
	if !decode(w, r, &in) {
		return
	}
	inv, payment, err := a.svc.Invoices.RecordPayment(r.Context(), accountID(r), id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderCreated(w, map[string]interface{}{"invoice": inv, "payment": payment})
}
