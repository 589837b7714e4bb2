// Package orders is the boundary to the system that owns carts and invoices.
// The payment service only reads prices from it and reports outcomes back.
package orders

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidToken    = errors.New("invalid or expired cart token")
	ErrInvoiceNotFound = errors.New("invoice not found")
)

type LineItem struct {
	Name       string          `json:"name"`
	Quantity   int64           `json:"quantity"`
	UnitAmount decimal.Decimal `json:"unitAmount"`
}

// Invoice is the authoritative price of a cart.
type Invoice struct {
	Token       string          `json:"token"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
	LineItems   []LineItem      `json:"lineItems,omitempty"`
}

type Source interface {
	ValidateToken(ctx context.Context, token string) error
	GetInvoice(ctx context.Context, token string) (Invoice, error)
	// ConfirmPayment must tolerate repeat calls for the same transaction.
	ConfirmPayment(ctx context.Context, token string, transactionID string) error
	// MarkPaymentFailed records why the payment for token did not go
	// through, e.g. a decline code or an expired session.
	MarkPaymentFailed(ctx context.Context, token string, transactionID string, reason string) error
}
