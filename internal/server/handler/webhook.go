package handler

import (
	"errors"
	"net/http"

	"github.com/garrettladley/payhook/internal/service/webhook"
	"github.com/garrettladley/payhook/internal/xerrors"
	"github.com/garrettladley/payhook/internal/xhttp"
	"github.com/garrettladley/payhook/internal/xslog"
)

const maxWebhookBody = 1 << 20

type Webhook struct {
	service webhook.Service
}

func NewWebhook(service webhook.Service) *Webhook {
	return &Webhook{service: service}
}

type webhookResponse struct {
	Received bool          `json:"received"`
	State    webhook.State `json:"state,omitempty"`
}

// HandleWebhook handles /webhooks/payments. Only POST is processed; GET and
// HEAD answer 200 so processors can check the endpoint is reachable.
func (h *Webhook) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
	case http.MethodGet:
		xhttp.WriteOK(w, webhookResponse{Received: false})
		return
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
		return
	default:
		xhttp.MethodNotAllowed(w, http.MethodPost, http.MethodGet, http.MethodHead)
		return
	}

	ctx := r.Context()
	logger := xslog.FromContext(ctx)

	body, err := xhttp.ReadBody(w, r, maxWebhookBody)
	if err != nil {
		logger.WarnContext(ctx, "failed to read webhook body", xslog.Error(err))
		xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("failed to read request body")))
		return
	}

	res, err := h.service.Dispatch(ctx, webhook.Request{Header: r.Header, Body: body})
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrVerification):
			xerrors.WriteError(ctx, w, xerrors.Unauthorized(xerrors.WithMessage("invalid signature")))
		case errors.Is(err, webhook.ErrMalformedPayload):
			xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("malformed payload")))
		case errors.Is(err, webhook.ErrMissingCorrelationToken):
			xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("missing correlation token")))
		default:
			xerrors.WriteError(ctx, w, xerrors.Internal(xerrors.WithMessage("failed to process webhook"), xerrors.WithCause(err)))
		}
		return
	}

	// order-source failures are acknowledged; they are resolved by
	// reconciliation rather than processor retries
	xhttp.WriteOK(w, webhookResponse{Received: true, State: res.State})
}
