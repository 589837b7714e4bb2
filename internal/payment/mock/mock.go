// Package mock is an in-process payment processor used by tests and local
// development. It hosts no pages; redirect URLs point at a configurable base
// and deliveries are produced on demand with Deliver.
package mock

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/garrettladley/payhook/internal/payment"
	"github.com/garrettladley/payhook/internal/webhook"
	go_json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	Name = "mock"

	DefaultCheckoutURL = "https://checkout.mock.local/pay"

	sessionIDPrefix = "cs_mock_"
	eventIDPrefix   = "msg_"

	// FailureDeclined is the reason Deliver attaches to failed payments.
	FailureDeclined = "card_declined"
)

var ErrSessionNotFound = errors.New("mock checkout session not found")

type Adapter struct {
	checkoutURL string
	secret      string
	verifier    *webhook.Verifier
	now         func() time.Time
	createErr   error

	mu       sync.Mutex
	sessions map[string]payment.CheckoutSession
}

var _ payment.Adapter = (*Adapter)(nil)

type Option func(*Adapter)

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// WithCreateError makes every CreateHostedCheckout call fail with err.
func WithCreateError(err error) Option {
	return func(a *Adapter) { a.createErr = err }
}

// New returns an adapter whose hosted pages live under checkoutURL and whose
// deliveries are signed with secret.
func New(checkoutURL, secret string, opts ...Option) *Adapter {
	if checkoutURL == "" {
		checkoutURL = DefaultCheckoutURL
	}
	a := &Adapter{
		checkoutURL: strings.TrimRight(checkoutURL, "/"),
		secret:      secret,
		verifier:    webhook.NewVerifier(),
		now:         time.Now,
		sessions:    make(map[string]payment.CheckoutSession),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Scheme() payment.SigningScheme { return payment.SchemeStandardWebhooks }

func (a *Adapter) CreateHostedCheckout(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	if err := req.Validate(); err != nil {
		return payment.CheckoutSession{}, err
	}
	if err := ctx.Err(); err != nil {
		return payment.CheckoutSession{}, err
	}
	if a.createErr != nil {
		return payment.CheckoutSession{}, a.createErr
	}

	id := sessionIDPrefix + uuid.NewString()
	session := payment.CheckoutSession{
		SessionID:        id,
		RedirectURL:      a.checkoutURL + "/" + url.PathEscape(id),
		AmountMinorUnits: req.AmountMinorUnits,
		Currency:         strings.ToLower(req.Currency),
		Metadata:         maps.Clone(req.Metadata),
		SuccessURL:       req.SuccessURL,
		CancelURL:        req.CancelURL,
		Status:           payment.SessionOpen,
	}

	a.mu.Lock()
	a.sessions[id] = session
	a.mu.Unlock()

	return session, nil
}

// Session returns a session created by this adapter.
func (a *Adapter) Session(id string) (payment.CheckoutSession, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[id]
	return s, ok
}

func (a *Adapter) VerifyWebhook(_ context.Context, req payment.WebhookRequest, secret string) (payment.Event, error) {
	env := webhook.EnvelopeFromRequest(req.Header, req.Body)
	if res := a.verifier.Verify(env, secret); !res.Valid {
		return payment.Event{}, fmt.Errorf("%w: %w", payment.ErrInvalidSignature, res.Err())
	}

	var p eventPayload
	if err := go_json.Unmarshal(req.Body, &p); err != nil {
		return payment.Event{}, fmt.Errorf("%w: %w", payment.ErrMalformedPayload, err)
	}
	if p.Type == "" {
		return payment.Event{}, fmt.Errorf("%w: missing type", payment.ErrMalformedPayload)
	}

	return payment.Event{
		EventID:          env.ID,
		Type:             p.Type,
		TransactionID:    p.Data.TransactionID,
		CorrelationToken: p.Data.Metadata[payment.MetadataCorrelationToken],
		Status:           payment.Status(p.Data.Status),
		FailureReason:    p.Data.FailureReason,
		Raw:              req.Body,
	}, nil
}

func (a *Adapter) ExtractCorrelationToken(event payment.Event) (string, bool) {
	return event.CorrelationToken, event.CorrelationToken != ""
}

func (a *Adapter) TransactionID(event payment.Event) string { return event.TransactionID }

func (a *Adapter) PaymentStatus(event payment.Event) payment.Status { return event.Status }

// Deliver builds the signed webhook the processor would send once the
// customer finishes session id.
func (a *Adapter) Deliver(sessionID, transactionID string, status payment.Status) (payment.WebhookRequest, error) {
	session, ok := a.Session(sessionID)
	if !ok {
		return payment.WebhookRequest{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	var reason string
	a.mu.Lock()
	switch status {
	case payment.StatusSucceeded:
		session.Status = payment.SessionComplete
	case payment.StatusFailed:
		session.Status = payment.SessionExpired
		reason = FailureDeclined
	}
	a.sessions[sessionID] = session
	a.mu.Unlock()

	return a.sign(eventPayload{
		Type: "payment." + string(status),
		Data: eventData{
			SessionID:     session.SessionID,
			TransactionID: transactionID,
			Status:        string(status),
			Amount:        session.AmountMinorUnits,
			Currency:      session.Currency,
			FailureReason: reason,
			Metadata:      session.Metadata,
		},
	})
}

// sign wraps p in a signed delivery with a fresh id.
func (a *Adapter) sign(p eventPayload) (payment.WebhookRequest, error) {
	body, err := go_json.Marshal(p)
	if err != nil {
		return payment.WebhookRequest{}, fmt.Errorf("failed to marshal mock event: %w", err)
	}
	return a.SignRaw(body)
}

// SignRaw signs body as-is, for payloads the adapter would not produce itself.
func (a *Adapter) SignRaw(body []byte) (payment.WebhookRequest, error) {
	id := eventIDPrefix + uuid.NewString()
	ts := strconv.FormatInt(a.now().Unix(), 10)
	sig, err := webhook.Sign(id, ts, body, a.secret)
	if err != nil {
		return payment.WebhookRequest{}, err
	}
	env := webhook.Envelope{ID: id, Timestamp: ts, Body: body, Signature: sig}
	return payment.WebhookRequest{Header: env.Header(), Body: body}, nil
}
