package api

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/accounts"
	"github.com/fieldledger/fieldledger/internal/appstate"
	"github.com/fieldledger/fieldledger/internal/billing"
	"github.com/fieldledger/fieldledger/internal/db"
	"github.com/fieldledger/fieldledger/internal/invoices"
	"github.com/fieldledger/fieldledger/internal/logging"
	"github.com/fieldledger/fieldledger/internal/materials"
	"github.com/fieldledger/fieldledger/internal/quotes"
	"github.com/fieldledger/fieldledger/internal/referral"
	"github.com/fieldledger/fieldledger/internal/schedule"
	"github.com/fieldledger/fieldledger/internal/validation"
	"github.com/fieldledger/fieldledger/internal/web/response"
)

var conflicts = []error{
	accounts.ErrEmailTaken,
	db.ErrUniqueViolation,
	billing.ErrAlreadySubscribed,
	billing.ErrAlreadyOwned,
	schedule.ErrOverlap,
	quotes.ErrInvalidTransition,
	quotes.ErrNotEditable,
	invoices.ErrInvalidTransition,
	invoices.ErrNotEditable,
}

var unprocessable = []error{
	accounts.ErrInvalidReferral,
	invoices.ErrOverpayment,
	materials.ErrInsufficientStock,
	referral.ErrSelfReferral,
	referral.ErrBelowThreshold,
	db.ErrForeignKeyViolation,
	db.ErrCheckViolation,
}

var badWebhook = []error{
	billing.ErrInvalidSignature,
	billing.ErrStaleSignature,
	billing.ErrMalformedEvent,
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// fail renders err with the status its sentinel maps to. Unmapped errors are
// logged and hidden behind a 500.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Errors
	switch {
	case errors.As(err, &verr):
		response.RenderValidationError(w, verr)
	case errors.Is(err, db.ErrNotFound):
		response.RenderNotFound(w, "")
	case errors.Is(err, accounts.ErrInvalidCredentials):
		response.RenderUnauthorized(w, err.Error())
	case errors.Is(err, accounts.ErrNotAdmin):
		response.RenderForbidden(w, err.Error())
	case errors.Is(err, appstate.ErrQuotaExceeded):
		response.RenderPaymentRequired(w, err.Error(), appstate.UpgradePath, nil)
	case isAny(err, conflicts):
		response.RenderConflict(w, err.Error())
	case isAny(err, unprocessable):
		response.RenderErrorWithCode(w, http.StatusUnprocessableEntity, err, "unprocessable")
	case isAny(err, badWebhook):
		response.RenderBadRequest(w, err.Error())
	case errors.Is(err, billing.ErrGatewayUnavailable):
		response.RenderServiceUnavailable(w, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		response.RenderError(w, http.StatusGatewayTimeout, errors.New("request timed out"))
	default:
		logging.FromContext(r.Context(), a.logger).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		response.RenderInternalError(w)
	}
}

func badRequest(w http.ResponseWriter, err error) {
	response.RenderBadRequest(w, err.Error())
}
