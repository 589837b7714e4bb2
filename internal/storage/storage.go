package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrRecordFinal is returned when a write would replace a completed or
	// failed record that has not yet expired.
	ErrRecordFinal = errors.New("record already final")
)

type RateLimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

type RateLimiter interface {
	Allow(ctx context.Context, key string) (RateLimitResult, error)
}

// Backend names reported as the source of an idempotency operation.
const (
	SourceMemory   = "memory"
	SourceRedis    = "redis"
	SourcePostgres = "postgres"
	SourceSQLite   = "sqlite"
)

type IdempotencyStore interface {
	Source() string

	// Get returns ErrNotFound when no live record exists for eventID.
	Get(ctx context.Context, eventID string) (IdempotencyRecord, error)

	// Put writes rec unless a terminal, unexpired record already exists,
	// in which case it returns ErrRecordFinal.
	Put(ctx context.Context, rec IdempotencyRecord) error

	Ping(ctx context.Context) error

	Close() error
}

// ConditionalPutter is implemented by stores that can atomically create a
// record only when no live record exists.
type ConditionalPutter interface {
	PutIfAbsent(ctx context.Context, rec IdempotencyRecord) (bool, error)
}

type ExpirySweeper interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type RecordLister interface {
	ListByStatus(ctx context.Context, status IdempotencyStatus, limit int) ([]IdempotencyRecord, error)
}
