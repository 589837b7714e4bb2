package server

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/garrettladley/payhook/internal/server/handler"
	servermw "github.com/garrettladley/payhook/internal/server/middleware"
	"github.com/garrettladley/payhook/internal/service/checkout"
	"github.com/garrettladley/payhook/internal/service/webhook"
	"github.com/garrettladley/payhook/internal/storage"
	"github.com/garrettladley/payhook/internal/xhttp/middleware"
)

type Deps struct {
	Logger      *slog.Logger
	Webhook     webhook.Service
	Checkout    checkout.Service
	Health      handler.SourceReporter
	RateLimiter storage.RateLimiter
	// TrustedProxies may set X-Forwarded-For for rate limiting.
	TrustedProxies []netip.Prefix
	CORS           middleware.CORSConfig
}

// NewRouter wires the public routes and the middleware every request passes
// through.
func NewRouter(d Deps) http.Handler {
	webhookHandler := handler.NewWebhook(d.Webhook)
	checkoutHandler := handler.NewCheckout(d.Checkout)
	healthHandler := handler.NewHealth(d.Health)

	mux := http.NewServeMux()

	// method gating is the handler's so GET and HEAD checks get 200
	mux.HandleFunc("/webhooks/payments", webhookHandler.HandleWebhook)
	mux.HandleFunc("GET /health", healthHandler.HandleHealth)

	checkoutMux := http.NewServeMux()
	checkoutMux.HandleFunc("POST /checkout/sessions", checkoutHandler.HandleCreateSession)
	mux.Handle("/checkout/sessions", middleware.Chain(checkoutMux,
		middleware.CORS(d.CORS),
		servermw.RateLimit(d.RateLimiter, d.TrustedProxies),
	))

	// outermost first: the request id must exist before the logger is
	// derived, and Recovery sits inside Logging so a panic is logged as a 500
	return middleware.Chain(mux,
		middleware.RequestID(),
		middleware.Logger(d.Logger),
		middleware.Logging,
		middleware.Recovery,
		middleware.SecurityHeaders,
	)
}
