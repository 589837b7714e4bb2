package webhook

import (
	"context"
	"errors"
	"net/http"

	"github.com/garrettladley/payhook/internal/payment"
)

var (
	ErrVerification            = errors.New("webhook verification failed")
	ErrMalformedPayload        = errors.New("malformed webhook payload")
	ErrMissingCorrelationToken = errors.New("webhook has no correlation token")
)

// State is a step of delivery processing. A succeeded payment ends in
// StateConfirmed and a failed one in StateFailureRecorded.
// StateNeedsReconciliation means the order source rejected the outcome after
// the event was recorded.
type State string

const (
	StateReceived            State = "received"
	StateVerified            State = "verified"
	StateDuplicate           State = "duplicate"
	StateNormalized          State = "normalized"
	StateConfirming          State = "confirming"
	StateConfirmed           State = "confirmed"
	StateFailureRecorded     State = "failure_recorded"
	StateNeedsReconciliation State = "needs_reconciliation"
	StateIgnored             State = "ignored"
)

type Request struct {
	Header http.Header
	Body   []byte
}

// Result is where a delivery ended up. On error State is the last state
// reached before the failure.
type Result struct {
	State         State
	EventID       string
	EventType     string
	TransactionID string
	Status        payment.Status
	Source        string
	// NeedsReconciliation is set when the order source rejected the outcome
	// after the event was recorded; Err holds its error.
	NeedsReconciliation bool
	Err                 error
}

type Service interface {
	// Dispatch authenticates a delivery and applies it to the order source
	// at most once per event id.
	// Returns ErrVerification if the delivery is not authentic.
	// Returns ErrMalformedPayload if the body cannot be normalized.
	// Returns ErrMissingCorrelationToken if a succeeded or failed event
	// names no order.
	// Any other error is an idempotency store failure or an interrupted
	// order update; either way the processor should retry.
	Dispatch(ctx context.Context, req Request) (Result, error)
}
