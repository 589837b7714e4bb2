package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/garrettladley/payhook/internal/orders"
	"github.com/garrettladley/payhook/internal/payment"
	"github.com/garrettladley/payhook/internal/xslog"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	SuccessURL string `env:"SUCCESS_URL"`
	CancelURL  string `env:"CANCEL_URL"`
}

type Orchestrator struct {
	orders  orders.Source
	adapter payment.Adapter
	cfg     Config
	group   singleflight.Group
}

var _ Service = (*Orchestrator)(nil)

func NewOrchestrator(source orders.Source, adapter payment.Adapter, cfg Config) *Orchestrator {
	return &Orchestrator{
		orders:  source,
		adapter: adapter,
		cfg:     cfg,
	}
}

func (o *Orchestrator) CreateSession(ctx context.Context, publicToken string) (Result, error) {
	publicToken = strings.TrimSpace(publicToken)
	if publicToken == "" {
		return Result{}, ErrInvalidToken
	}

	// a double-clicked pay button shares one session
	v, err, _ := o.group.Do(publicToken, func() (any, error) {
		return o.createSession(context.WithoutCancel(ctx), publicToken)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (o *Orchestrator) createSession(ctx context.Context, token string) (Result, error) {
	logger := xslog.FromContext(ctx)

	if err := o.orders.ValidateToken(ctx, token); err != nil {
		if errors.Is(err, orders.ErrInvalidToken) {
			return Result{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
		return Result{}, fmt.Errorf("validate token: %w", err)
	}

	inv, err := o.orders.GetInvoice(ctx, token)
	if err != nil {
		if errors.Is(err, orders.ErrInvoiceNotFound) {
			return Result{}, fmt.Errorf("%w: %w", ErrInvalidInvoice, err)
		}
		return Result{}, fmt.Errorf("get invoice: %w", err)
	}
	if !inv.Amount.IsPositive() {
		return Result{}, fmt.Errorf("%w: amount %s", ErrInvalidInvoice, inv.Amount)
	}
	if strings.TrimSpace(inv.Currency) == "" {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInvoice, payment.ErrMissingCurrency)
	}

	minor, err := payment.ToMinorUnits(inv.Amount, inv.Currency)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInvoice, err)
	}
	items, err := lineItems(inv)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInvoice, err)
	}

	req := payment.CheckoutRequest{
		AmountMinorUnits: minor,
		Currency:         strings.ToLower(inv.Currency),
		Description:      inv.Description,
		LineItems:        items,
		Metadata:         map[string]string{payment.MetadataCorrelationToken: token},
		SuccessURL:       o.cfg.SuccessURL,
		CancelURL:        o.cfg.CancelURL,
	}
	// an itemized invoice that does not add up to its total is the order
	// source's bug, not the processor's
	if err := req.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInvoice, err)
	}

	session, err := o.adapter.CreateHostedCheckout(ctx, req)
	if err != nil {
		logger.ErrorContext(ctx, "failed to create checkout session",
			xslog.Processor(o.adapter.Name()),
			xslog.CorrelationToken(token),
			xslog.Error(err),
		)
		return Result{}, fmt.Errorf("%w: %w", ErrProcessor, err)
	}

	logger.InfoContext(ctx, "created checkout session",
		xslog.Processor(o.adapter.Name()),
		xslog.SessionID(session.SessionID),
		xslog.CorrelationToken(token),
		xslog.Amount(minor, req.Currency),
	)

	return Result{RedirectURL: session.RedirectURL, SessionID: session.SessionID}, nil
}

func lineItems(inv orders.Invoice) ([]payment.LineItem, error) {
	if len(inv.LineItems) == 0 {
		return nil, nil
	}
	items := make([]payment.LineItem, 0, len(inv.LineItems))
	for _, li := range inv.LineItems {
		unit, err := payment.ToMinorUnits(li.UnitAmount, inv.Currency)
		if err != nil {
			return nil, fmt.Errorf("line item %q: %w", li.Name, err)
		}
		items = append(items, payment.LineItem{Name: li.Name, Quantity: li.Quantity, UnitAmountMinors: unit})
	}
	return items, nil
}
