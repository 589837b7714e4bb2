package checkout

import (
	"context"
	"errors"
)

var (
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrInvalidInvoice = errors.New("invoice cannot be paid")
	ErrProcessor      = errors.New("unable to create checkout session")
)

type Result struct {
	RedirectURL string `json:"redirectUrl"`
	SessionID   string `json:"sessionId"`
}

type Service interface {
	// CreateSession prices the cart behind publicToken and opens a hosted
	// checkout for it. Errors wrap ErrInvalidToken, ErrInvalidInvoice or
	// ErrProcessor.
	CreateSession(ctx context.Context, publicToken string) (Result, error)
}
