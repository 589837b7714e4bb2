package storage

import (
	"fmt"
	"time"
)

type IdempotencyStatus string

const (
	StatusProcessing IdempotencyStatus = "processing"
	StatusCompleted  IdempotencyStatus = "completed"
	StatusFailed     IdempotencyStatus = "failed"
)

func ParseIdempotencyStatus(s string) (IdempotencyStatus, error) {
	switch st := IdempotencyStatus(s); st {
	case StatusProcessing, StatusCompleted, StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("invalid idempotency status: %q", s)
	}
}

// Terminal reports whether the status can no longer change.
func (s IdempotencyStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s IdempotencyStatus) String() string { return string(s) }

// Metadata keys written on idempotency records and read back by
// reconciliation tooling.
const (
	MetadataEventType        = "event_type"
	MetadataTransactionID    = "transaction_id"
	MetadataCorrelationToken = "correlation_token"
	MetadataProcessor        = "processor"
	MetadataPaymentStatus    = "payment_status"
	MetadataFailureReason    = "failure_reason"
)

// IdempotencyRecord tracks one processor event id. Transitions run
// processing -> completed | failed and never back.
type IdempotencyRecord struct {
	EventID     string            `json:"event_id"`
	Status      IdempotencyStatus `json:"status"`
	ProcessedAt time.Time         `json:"processed_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// replaceable reports whether rec may be overwritten at now.
func (r IdempotencyRecord) replaceable(now time.Time) bool {
	return r.Expired(now) || !r.Status.Terminal()
}

func ttlUntil(expiresAt, now time.Time) time.Duration {
	ttl := expiresAt.Sub(now)
	if ttl < time.Millisecond {
		return time.Millisecond
	}
	return ttl
}
