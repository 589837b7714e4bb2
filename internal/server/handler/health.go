package handler

import (
	"context"
	"net/http"

	"github.com/garrettladley/payhook/internal/xhttp"
)

// SourceReporter reports which idempotency backend is currently serving.
type SourceReporter interface {
	ActiveSource(ctx context.Context) string
}

type Health struct {
	idempotency SourceReporter
}

func NewHealth(idempotency SourceReporter) *Health {
	return &Health{idempotency: idempotency}
}

type healthResponse struct {
	Status      string `json:"status"`
	Idempotency string `json:"idempotency"`
}

// HandleHealth handles GET /health requests.
func (h *Health) HandleHealth(w http.ResponseWriter, r *http.Request) {
	xhttp.WriteOK(w, healthResponse{
		Status:      "ok",
		Idempotency: h.idempotency.ActiveSource(r.Context()),
	})
}
