package idempotency

import (
	"context"
	"time"

	"github.com/garrettladley/payhook/internal/storage"
)

// Lookup reports whether an event id has been recorded, in any status.
type Lookup struct {
	Processed   bool
	ProcessedAt time.Time
	Status      storage.IdempotencyStatus
	Source      string
}

type MarkResult struct {
	Success bool
	Source  string
	Err     error
}

// Outcome describes one ProcessWithIdempotency call. Err carries the
// processor's error; the event is still recorded as failed in that case,
// unless Interrupted reports that ctx ended first and the record was left
// processing.
type Outcome struct {
	Duplicate   bool
	Interrupted bool
	Status      storage.IdempotencyStatus
	Source      string
	Err         error
	Mark        MarkResult
}

type ProcessorFunc func(ctx context.Context) error

type Service interface {
	IsProcessed(ctx context.Context, eventID string) (Lookup, error)

	MarkProcessed(ctx context.Context, eventID string, status storage.IdempotencyStatus, metadata map[string]string) MarkResult

	// ProcessWithIdempotency runs fn at most once per event id. A seen id
	// returns Outcome.Duplicate without calling fn. The returned error is
	// reserved for store failures.
	ProcessWithIdempotency(ctx context.Context, eventID string, fn ProcessorFunc, metadata map[string]string) (Outcome, error)
}
