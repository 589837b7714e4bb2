// Package payment defines the processor-agnostic checkout and webhook
// contract the rest of the service is written against.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// MetadataCorrelationToken is the session metadata key that carries the
// order-source token through the processor and back on the webhook.
const MetadataCorrelationToken = "correlation_token"

var (
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrMissingCurrency         = errors.New("currency is required")
	ErrMissingCorrelationToken = errors.New("correlation token is required")
	ErrInvalidSignature        = errors.New("invalid webhook signature")
	ErrMalformedPayload        = errors.New("malformed webhook payload")
	ErrLineItems               = errors.New("line items do not add up to the amount")
)

// SigningScheme says who authenticates inbound webhooks.
type SigningScheme int

const (
	// SchemeStandardWebhooks deliveries carry webhook-id, webhook-timestamp
	// and webhook-signature headers and are verified before the adapter
	// sees them.
	SchemeStandardWebhooks SigningScheme = iota
	// SchemeNative adapters verify with the processor's own scheme inside
	// VerifyWebhook.
	SchemeNative
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusPending   Status = "pending"
)

func (s Status) Known() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusPending:
		return true
	default:
		return false
	}
}

type SessionStatus string

const (
	SessionOpen     SessionStatus = "open"
	SessionComplete SessionStatus = "complete"
	SessionExpired  SessionStatus = "expired"
)

type LineItem struct {
	Name             string
	Quantity         int64
	UnitAmountMinors int64
}

type CheckoutRequest struct {
	AmountMinorUnits int64
	Currency         string
	Description      string
	LineItems        []LineItem
	Metadata         map[string]string
	SuccessURL       string
	CancelURL        string
}

// Validate checks the fields every processor requires.
func (r CheckoutRequest) Validate() error {
	if r.AmountMinorUnits <= 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(r.Currency) == "" {
		return ErrMissingCurrency
	}
	if r.Metadata[MetadataCorrelationToken] == "" {
		return ErrMissingCorrelationToken
	}
	return r.validateLineItems()
}

// validateLineItems requires an itemized request to charge exactly
// AmountMinorUnits. An empty list is charged as a single line.
func (r CheckoutRequest) validateLineItems() error {
	if len(r.LineItems) == 0 {
		return nil
	}
	var total int64
	for i, li := range r.LineItems {
		if li.Quantity <= 0 || li.UnitAmountMinors < 0 {
			return fmt.Errorf("%w: item %d has quantity %d and unit amount %d", ErrLineItems, i, li.Quantity, li.UnitAmountMinors)
		}
		total += li.Quantity * li.UnitAmountMinors
	}
	if total != r.AmountMinorUnits {
		return fmt.Errorf("%w: items total %d, amount %d", ErrLineItems, total, r.AmountMinorUnits)
	}
	return nil
}

type CheckoutSession struct {
	SessionID        string
	RedirectURL      string
	AmountMinorUnits int64
	Currency         string
	Metadata         map[string]string
	SuccessURL       string
	CancelURL        string
	Status           SessionStatus
}

type WebhookRequest struct {
	Header http.Header
	Body   []byte
}

// Event is a processor webhook reduced to what order confirmation needs.
type Event struct {
	EventID          string
	Type             string
	TransactionID    string
	CorrelationToken string
	Status           Status
	// FailureReason is the processor's account of a failed payment, such
	// as a decline code or the session expiring.
	FailureReason string
	Raw           []byte
}

type Adapter interface {
	Name() string
	Scheme() SigningScheme

	CreateHostedCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)

	// VerifyWebhook authenticates and normalizes a delivery. It returns
	// ErrInvalidSignature or ErrMalformedPayload on failure.
	VerifyWebhook(ctx context.Context, req WebhookRequest, secret string) (Event, error)

	ExtractCorrelationToken(event Event) (string, bool)
	TransactionID(event Event) string
	PaymentStatus(event Event) Status
}
