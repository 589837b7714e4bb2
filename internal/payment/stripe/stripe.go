// Package stripe adapts Stripe Checkout to the payment.Adapter contract.
// Webhooks are authenticated with Stripe's own signature scheme.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/garrettladley/payhook/internal/payment"
	go_json "github.com/goccy/go-json"
	stripeapi "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	Name = "stripe"

	HeaderSignature = "Stripe-Signature"

	DefaultTolerance     = 300 * time.Second
	DefaultMaxFutureSkew = 60 * time.Second

	defaultProductName = "Order"
)

const (
	eventCheckoutCompleted        = "checkout.session.completed"
	eventCheckoutAsyncSucceeded   = "checkout.session.async_payment_succeeded"
	eventCheckoutAsyncFailed      = "checkout.session.async_payment_failed"
	eventCheckoutSessionExpired   = "checkout.session.expired"
	paymentStatusPaid             = "paid"
	paymentStatusNoPaymentRequire = "no_payment_required"

	failureAsyncPayment   = "async_payment_failed"
	failureSessionExpired = "session_expired"
)

type Config struct {
	SecretKey string `env:"SECRET_KEY"`
	// APIURL overrides the API host, for tests and stripe-mock.
	APIURL    string        `env:"API_URL"`
	Tolerance time.Duration `env:"WEBHOOK_TOLERANCE" envDefault:"5m"`
	// MaxFutureSkew bounds how far ahead of our clock a signature timestamp
	// may be. The SDK only bounds age.
	MaxFutureSkew time.Duration `env:"WEBHOOK_MAX_FUTURE_SKEW" envDefault:"60s"`
}

type Adapter struct {
	api           *client.API
	tolerance     time.Duration
	maxFutureSkew time.Duration
	now           func() time.Time
}

var _ payment.Adapter = (*Adapter)(nil)

func New(cfg Config, httpClient *http.Client) *Adapter {
	backendCfg := &stripeapi.BackendConfig{
		HTTPClient:        httpClient,
		LeveledLogger:     &stripeapi.LeveledLogger{Level: stripeapi.LevelError},
		MaxNetworkRetries: stripeapi.Int64(2),
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripeapi.String(cfg.APIURL)
	}
	backend := stripeapi.GetBackendWithConfig(stripeapi.APIBackend, backendCfg)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripeapi.Backends{API: backend, Connect: backend, Uploads: backend})

	a := &Adapter{
		api:           api,
		tolerance:     cfg.Tolerance,
		maxFutureSkew: cfg.MaxFutureSkew,
		now:           time.Now,
	}
	if a.tolerance <= 0 {
		a.tolerance = DefaultTolerance
	}
	if a.maxFutureSkew <= 0 {
		a.maxFutureSkew = DefaultMaxFutureSkew
	}
	return a
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Scheme() payment.SigningScheme { return payment.SchemeNative }

func (a *Adapter) CreateHostedCheckout(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	if err := req.Validate(); err != nil {
		return payment.CheckoutSession{}, err
	}

	name := req.Description
	if name == "" {
		name = defaultProductName
	}
	currency := strings.ToLower(req.Currency)
	token := req.Metadata[payment.MetadataCorrelationToken]

	params := &stripeapi.CheckoutSessionParams{
		Mode:              stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		SuccessURL:        stripeapi.String(req.SuccessURL),
		CancelURL:         stripeapi.String(req.CancelURL),
		ClientReferenceID: stripeapi.String(token),
		LineItems:         lineItemParams(req, currency, name),
		PaymentIntentData: &stripeapi.CheckoutSessionPaymentIntentDataParams{
			Metadata: maps.Clone(req.Metadata),
		},
	}
	params.Context = ctx
	params.Metadata = maps.Clone(req.Metadata)

	s, err := a.api.CheckoutSessions.New(params)
	if err != nil {
		return payment.CheckoutSession{}, mapStripeError(err)
	}

	return payment.CheckoutSession{
		SessionID:        s.ID,
		RedirectURL:      s.URL,
		AmountMinorUnits: req.AmountMinorUnits,
		Currency:         currency,
		Metadata:         maps.Clone(req.Metadata),
		SuccessURL:       req.SuccessURL,
		CancelURL:        req.CancelURL,
		Status:           payment.SessionOpen,
	}, nil
}

// lineItemParams renders the invoice items, or one line at the total when
// the request is not itemized. Validate has already checked that the items
// add up to the total.
func lineItemParams(req payment.CheckoutRequest, currency, name string) []*stripeapi.CheckoutSessionLineItemParams {
	if len(req.LineItems) == 0 {
		return []*stripeapi.CheckoutSessionLineItemParams{lineItem(name, currency, req.AmountMinorUnits, 1)}
	}
	out := make([]*stripeapi.CheckoutSessionLineItemParams, 0, len(req.LineItems))
	for _, li := range req.LineItems {
		itemName := li.Name
		if itemName == "" {
			itemName = name
		}
		out = append(out, lineItem(itemName, currency, li.UnitAmountMinors, li.Quantity))
	}
	return out
}

func lineItem(name, currency string, unitAmount, quantity int64) *stripeapi.CheckoutSessionLineItemParams {
	return &stripeapi.CheckoutSessionLineItemParams{
		PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripeapi.String(currency),
			UnitAmount: stripeapi.Int64(unitAmount),
			ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripeapi.String(name),
			},
		},
		Quantity: stripeapi.Int64(quantity),
	}
}

func (a *Adapter) VerifyWebhook(_ context.Context, req payment.WebhookRequest, secret string) (payment.Event, error) {
	header := req.Header.Get(HeaderSignature)
	event, err := webhook.ConstructEventWithOptions(req.Body, header, secret,
		webhook.ConstructEventOptions{
			Tolerance:                a.tolerance,
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		if isSignatureError(err) {
			return payment.Event{}, fmt.Errorf("%w: %w", payment.ErrInvalidSignature, err)
		}
		return payment.Event{}, fmt.Errorf("%w: %w", payment.ErrMalformedPayload, err)
	}
	if err := a.checkFutureSkew(header); err != nil {
		return payment.Event{}, fmt.Errorf("%w: %w", payment.ErrInvalidSignature, err)
	}

	out := payment.Event{
		EventID: event.ID,
		Type:    string(event.Type),
		Raw:     req.Body,
	}

	switch out.Type {
	case eventCheckoutCompleted, eventCheckoutAsyncSucceeded, eventCheckoutAsyncFailed, eventCheckoutSessionExpired:
	default:
		return out, nil
	}

	if event.Data == nil || len(event.Data.Raw) == 0 {
		return payment.Event{}, fmt.Errorf("%w: event %s has no object", payment.ErrMalformedPayload, event.ID)
	}
	var s stripeapi.CheckoutSession
	if err := go_json.Unmarshal(event.Data.Raw, &s); err != nil {
		return payment.Event{}, fmt.Errorf("%w: %w", payment.ErrMalformedPayload, err)
	}

	out.TransactionID = s.ID
	if s.PaymentIntent != nil && s.PaymentIntent.ID != "" {
		out.TransactionID = s.PaymentIntent.ID
	}
	out.CorrelationToken = s.ClientReferenceID
	if out.CorrelationToken == "" {
		out.CorrelationToken = s.Metadata[payment.MetadataCorrelationToken]
	}
	out.Status = sessionStatus(out.Type, string(s.PaymentStatus))
	switch out.Type {
	case eventCheckoutAsyncFailed:
		out.FailureReason = failureAsyncPayment
	case eventCheckoutSessionExpired:
		out.FailureReason = failureSessionExpired
	}

	return out, nil
}

// checkFutureSkew rejects a signature header whose t= timestamp is further
// ahead than maxFutureSkew. The header has already passed signature checks.
func (a *Adapter) checkFutureSkew(header string) error {
	for part := range strings.SplitSeq(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || key != "t" {
			continue
		}
		ts, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", value, err)
		}
		if skew := time.Unix(ts, 0).Sub(a.now()); skew > a.maxFutureSkew {
			return fmt.Errorf("timestamp %s ahead of local clock", skew.Truncate(time.Second))
		}
		return nil
	}
	return webhook.ErrInvalidHeader
}

func (a *Adapter) ExtractCorrelationToken(event payment.Event) (string, bool) {
	return event.CorrelationToken, event.CorrelationToken != ""
}

func (a *Adapter) TransactionID(event payment.Event) string { return event.TransactionID }

func (a *Adapter) PaymentStatus(event payment.Event) payment.Status { return event.Status }

func sessionStatus(eventType, paymentStatus string) payment.Status {
	switch eventType {
	case eventCheckoutCompleted:
		// delayed methods complete the session before funds settle
		if paymentStatus == paymentStatusPaid || paymentStatus == paymentStatusNoPaymentRequire {
			return payment.StatusSucceeded
		}
		return payment.StatusPending
	case eventCheckoutAsyncSucceeded:
		return payment.StatusSucceeded
	case eventCheckoutAsyncFailed, eventCheckoutSessionExpired:
		return payment.StatusFailed
	default:
		return ""
	}
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func mapStripeError(err error) error {
	var stripeErr *stripeapi.Error
	if errors.As(err, &stripeErr) {
		return fmt.Errorf("stripe %s (%d): %w", stripeErr.Type, stripeErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("stripe: %w", err)
}
