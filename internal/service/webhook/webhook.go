package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garrettladley/payhook/internal/orders"
	"github.com/garrettladley/payhook/internal/payment"
	"github.com/garrettladley/payhook/internal/service/idempotency"
	"github.com/garrettladley/payhook/internal/storage"
	stdwebhook "github.com/garrettladley/payhook/internal/webhook"
	"github.com/garrettladley/payhook/internal/xslog"
)

type Config struct {
	Secret        string        `env:"SECRET,required"`
	MaxAge        time.Duration `env:"MAX_AGE" envDefault:"5m"`
	MaxFutureSkew time.Duration `env:"MAX_FUTURE_SKEW" envDefault:"60s"`
}

type Dispatcher struct {
	adapter     payment.Adapter
	orders      orders.Source
	idempotency idempotency.Service
	verifier    *stdwebhook.Verifier
	replay      *stdwebhook.ReplayGuard
	secret      string
}

var _ Service = (*Dispatcher)(nil)

type Option func(*dispatcherOptions)

type dispatcherOptions struct {
	now func() time.Time
}

func WithClock(now func() time.Time) Option {
	return func(o *dispatcherOptions) { o.now = now }
}

func NewDispatcher(adapter payment.Adapter, source orders.Source, idem idempotency.Service, cfg Config, opts ...Option) *Dispatcher {
	o := dispatcherOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	replayOpts := []stdwebhook.ReplayGuardOption{stdwebhook.WithClock(o.now)}
	if cfg.MaxAge > 0 {
		replayOpts = append(replayOpts, stdwebhook.WithMaxAge(cfg.MaxAge))
	}
	if cfg.MaxFutureSkew > 0 {
		replayOpts = append(replayOpts, stdwebhook.WithMaxFutureSkew(cfg.MaxFutureSkew))
	}

	return &Dispatcher{
		adapter:     adapter,
		orders:      source,
		idempotency: idem,
		verifier:    stdwebhook.NewVerifier(),
		replay:      stdwebhook.NewReplayGuard(replayOpts...),
		secret:      cfg.Secret,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	logger := xslog.FromContext(ctx).With(xslog.Processor(d.adapter.Name()))
	res := Result{State: StateReceived}

	if d.adapter.Scheme() == payment.SchemeStandardWebhooks {
		env := stdwebhook.EnvelopeFromRequest(req.Header, req.Body)
		if v := stdwebhook.Authenticate(d.verifier, d.replay, env, d.secret); !v.Valid {
			logger.WarnContext(ctx, "rejected webhook", xslog.Reason(string(v.Kind)))
			return res, fmt.Errorf("%w: %w", ErrVerification, v.Err())
		}
		res.State = StateVerified
		res.EventID = env.ID

		dup, err := d.seen(ctx, &res)
		if err != nil || dup {
			return res, err
		}
	}

	event, err := d.adapter.VerifyWebhook(ctx, payment.WebhookRequest{Header: req.Header, Body: req.Body}, d.secret)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			logger.WarnContext(ctx, "rejected webhook", xslog.Reason("processor-signature"))
			return res, fmt.Errorf("%w: %w", ErrVerification, err)
		}
		logger.WarnContext(ctx, "malformed webhook", xslog.Error(err))
		return res, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	if res.State == StateReceived {
		if event.EventID == "" {
			return res, fmt.Errorf("%w: missing event id", ErrMalformedPayload)
		}
		res.State = StateVerified
		res.EventID = event.EventID

		dup, err := d.seen(ctx, &res)
		if err != nil || dup {
			return res, err
		}
	}

	res.State = StateNormalized
	res.EventType = event.Type
	res.TransactionID = d.adapter.TransactionID(event)
	res.Status = d.adapter.PaymentStatus(event)
	logger = logger.With(xslog.EventID(res.EventID), xslog.EventType(res.EventType))

	// only terminal outcomes name an order; anything else is acknowledged
	// so the processor stops retrying it
	switch res.Status {
	case payment.StatusSucceeded, payment.StatusFailed:
	default:
		res.State = StateIgnored
		logger.InfoContext(ctx, "ignored webhook", xslog.PaymentStatus(string(res.Status)))
		return res, nil
	}

	token, ok := d.adapter.ExtractCorrelationToken(event)
	if !ok {
		logger.WarnContext(ctx, "webhook has no correlation token")
		return res, ErrMissingCorrelationToken
	}

	reason := event.FailureReason
	if reason == "" {
		reason = event.Type
	}
	apply := func(ctx context.Context) error {
		if res.Status == payment.StatusFailed {
			return d.orders.MarkPaymentFailed(ctx, token, res.TransactionID, reason)
		}
		return d.orders.ConfirmPayment(ctx, token, res.TransactionID)
	}

	res.State = StateConfirming
	// the processor hanging up must not turn an in-flight order update into
	// a recorded failure
	out, err := d.idempotency.ProcessWithIdempotency(context.WithoutCancel(ctx), res.EventID, apply, map[string]string{
		storage.MetadataEventType:        res.EventType,
		storage.MetadataTransactionID:    res.TransactionID,
		storage.MetadataCorrelationToken: token,
		storage.MetadataProcessor:        d.adapter.Name(),
		storage.MetadataPaymentStatus:    string(res.Status),
	})
	if err != nil {
		return res, fmt.Errorf("process %s: %w", res.EventID, err)
	}
	res.Source = out.Source

	if out.Duplicate {
		res.State = StateDuplicate
		logger.InfoContext(ctx, "duplicate webhook", xslog.Source(out.Source))
		return res, nil
	}
	if out.Interrupted {
		return res, fmt.Errorf("process %s interrupted: %w", res.EventID, out.Err)
	}

	attrs := []any{
		xslog.TransactionID(res.TransactionID),
		xslog.CorrelationToken(token),
		xslog.PaymentStatus(string(res.Status)),
		xslog.Source(out.Source),
	}
	if out.Err != nil {
		res.State = StateNeedsReconciliation
		res.NeedsReconciliation = true
		res.Err = out.Err
		logger.ErrorContext(ctx, "order source rejected payment outcome, needs reconciliation",
			append(attrs, xslog.Error(out.Err))...,
		)
		return res, nil
	}

	res.State = StateConfirmed
	if res.Status == payment.StatusFailed {
		res.State = StateFailureRecorded
		attrs = append(attrs, xslog.Reason(reason))
	}
	logger.InfoContext(ctx, "processed webhook", attrs...)
	return res, nil
}

// seen reports whether res.EventID is already recorded, moving res to
// StateDuplicate when it is.
func (d *Dispatcher) seen(ctx context.Context, res *Result) (bool, error) {
	lookup, err := d.idempotency.IsProcessed(ctx, res.EventID)
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", res.EventID, err)
	}
	res.Source = lookup.Source
	if !lookup.Processed {
		return false, nil
	}

	res.State = StateDuplicate
	xslog.FromContext(ctx).InfoContext(ctx, "duplicate webhook",
		xslog.EventID(res.EventID),
		xslog.Source(lookup.Source),
		xslog.Reason(string(lookup.Status)),
	)
	return true, nil
}
