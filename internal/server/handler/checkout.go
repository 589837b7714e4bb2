package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/garrettladley/payhook/internal/service/checkout"
	"github.com/garrettladley/payhook/internal/validator"
	"github.com/garrettladley/payhook/internal/xerrors"
	"github.com/garrettladley/payhook/internal/xhttp"
	go_json "github.com/goccy/go-json"
)

const maxCheckoutBody = 16 << 10

type Checkout struct {
	service checkout.Service
}

func NewCheckout(service checkout.Service) *Checkout {
	return &Checkout{service: service}
}

type createSessionRequest struct {
	PublicToken string `json:"publicToken"`
}

func (req createSessionRequest) Validate() map[string]string {
	if strings.TrimSpace(req.PublicToken) == "" {
		return map[string]string{"publicToken": "is required"}
	}
	return nil
}

// HandleCreateSession handles POST /checkout/sessions requests.
func (h *Checkout) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := xhttp.ReadBody(w, r, maxCheckoutBody)
	if err != nil {
		xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("failed to read request body")))
		return
	}

	var req createSessionRequest
	if err := go_json.Unmarshal(body, &req); err != nil {
		xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("invalid JSON body")))
		return
	}
	if verr := validator.Validate(req); verr != nil {
		xerrors.WriteError(ctx, w, verr)
		return
	}

	res, err := h.service.CreateSession(ctx, req.PublicToken)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrInvalidToken):
			xerrors.WriteError(ctx, w, xerrors.Unauthorized(xerrors.WithMessage("invalid or expired token")))
		case errors.Is(err, checkout.ErrInvalidInvoice):
			xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("invoice cannot be paid"), xerrors.WithCause(err)))
		default:
			xerrors.WriteError(ctx, w, xerrors.Internal(xerrors.WithMessage("unable to create checkout session"), xerrors.WithCause(err)))
		}
		return
	}

	xhttp.WriteOK(w, res)
}
