package api

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/billing"
	"github.com/fieldledger/fieldledger/internal/logging"
	"github.com/fieldledger/fieldledger/internal/web/response"
	"github.com/fieldledger/fieldledger/internal/web/router"
)

// SignatureHeader carries the provider's webhook signature
const SignatureHeader = "Signature"

const maxWebhookBody = 1 << 20

type checkoutRequest struct {
	Product string `json:"product"`
}

func (a *API) billingRoutes(r *router.Router) {
	r.Use(a.gate(appstate.Billing))

	r.Get("/offers", a.offers)
	r.Get("/purchases", a.purchases)
	r.Post("/checkout", a.checkout)
}

func (a *API) offers(w http.ResponseWriter, r *http.Request) {
	response.RenderOK(w, a.svc.Billing.Offers())
}

func (a *API) purchases(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Billing.Purchases(r.Context(), accountID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*billing.Purchase{}
	}
	response.RenderList(w, list, len(list))
}

func (a *API) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := a.svc.Billing.Checkout(r.Context(), accountID(r), req.Product)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.RenderCreated(w, session)
}

// billingWebhook verifies and applies a provider event. The raw body is
// needed for the signature so it is not decoded here.
func (a *API) billingWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		response.RenderBadRequest(w, "unreadable webhook body")
		return
	}

	if err := a.svc.Billing.HandleWebhook(r.Context(), r.Header.Get(SignatureHeader), payload); err != nil {
		logging.FromContext(r.Context(), a.logger).Warn("billing webhook rejected", zap.Error(err))
		a.fail(w, r, err)
		return
	}
	response.RenderOK(w, map[string]bool{"received": true})
}
