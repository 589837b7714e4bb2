package idempotency

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/garrettladley/payhook/internal/storage"
	"github.com/garrettladley/payhook/internal/xslog"
)

const (
	DefaultTTL           = 72 * time.Hour
	DefaultProcessingTTL = 15 * time.Minute
)

type Config struct {
	// TTL bounds how long completed and failed records suppress redelivery.
	TTL time.Duration `env:"TTL" envDefault:"72h"`
	// ProcessingTTL bounds how long an interrupted attempt blocks retries.
	ProcessingTTL time.Duration `env:"PROCESSING_TTL" envDefault:"15m"`
}

// sourcedStore is implemented by stores that can answer from more than one
// backend and report which one served each call.
type sourcedStore interface {
	GetSourced(ctx context.Context, eventID string) (storage.IdempotencyRecord, string, error)
	PutSourced(ctx context.Context, rec storage.IdempotencyRecord) (string, error)
	PutIfAbsentSourced(ctx context.Context, rec storage.IdempotencyRecord) (bool, string, error)
}

type Guard struct {
	store         storage.IdempotencyStore
	ttl           time.Duration
	processingTTL time.Duration
	now           func() time.Time
}

var _ Service = (*Guard)(nil)

type Option func(*Guard)

func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

func NewGuard(store storage.IdempotencyStore, cfg Config, opts ...Option) *Guard {
	g := &Guard{
		store:         store,
		ttl:           cfg.TTL,
		processingTTL: cfg.ProcessingTTL,
		now:           time.Now,
	}
	if g.ttl <= 0 {
		g.ttl = DefaultTTL
	}
	if g.processingTTL <= 0 {
		g.processingTTL = DefaultProcessingTTL
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) IsProcessed(ctx context.Context, eventID string) (Lookup, error) {
	rec, source, err := g.get(ctx, eventID)
	if errors.Is(err, storage.ErrNotFound) {
		return Lookup{Source: source}, nil
	}
	if err != nil {
		return Lookup{Source: source}, fmt.Errorf("lookup %s: %w", eventID, err)
	}
	return Lookup{
		Processed:   true,
		ProcessedAt: rec.ProcessedAt,
		Status:      rec.Status,
		Source:      source,
	}, nil
}

func (g *Guard) MarkProcessed(ctx context.Context, eventID string, status storage.IdempotencyStatus, metadata map[string]string) MarkResult {
	now := g.now()
	ttl := g.ttl
	if !status.Terminal() {
		ttl = g.processingTTL
	}

	source, err := g.put(ctx, storage.IdempotencyRecord{
		EventID:     eventID,
		Status:      status,
		ProcessedAt: now,
		ExpiresAt:   now.Add(ttl),
		Metadata:    maps.Clone(metadata),
	})
	if err != nil {
		return MarkResult{Source: source, Err: err}
	}
	return MarkResult{Success: true, Source: source}
}

func (g *Guard) ProcessWithIdempotency(ctx context.Context, eventID string, fn ProcessorFunc, metadata map[string]string) (Outcome, error) {
	logger := xslog.FromContext(ctx)

	lookup, err := g.IsProcessed(ctx, eventID)
	if err != nil {
		return Outcome{}, err
	}
	if lookup.Processed {
		return Outcome{Duplicate: true, Status: lookup.Status, Source: lookup.Source}, nil
	}

	reserved, source, err := g.reserve(ctx, eventID, metadata)
	if err != nil {
		return Outcome{}, fmt.Errorf("reserve %s: %w", eventID, err)
	}
	if !reserved {
		return Outcome{Duplicate: true, Status: storage.StatusProcessing, Source: source}, nil
	}

	procErr := fn(ctx)

	// an abandoned caller says nothing about the event; the processing
	// record stays until ProcessingTTL so a redelivery can retry
	if procErr != nil && ctx.Err() != nil {
		logger.WarnContext(ctx, "processing interrupted, leaving record in flight",
			xslog.EventID(eventID),
			xslog.Source(source),
			xslog.Error(procErr),
		)
		return Outcome{Status: storage.StatusProcessing, Source: source, Err: procErr, Interrupted: true}, nil
	}

	status := storage.StatusCompleted
	final := metadata
	if procErr != nil {
		status = storage.StatusFailed
		final = maps.Clone(metadata)
		if final == nil {
			final = make(map[string]string, 1)
		}
		final[storage.MetadataFailureReason] = procErr.Error()
	}

	mark := g.MarkProcessed(ctx, eventID, status, final)
	if mark.Err != nil {
		logger.ErrorContext(ctx, "failed to record idempotency outcome",
			xslog.EventID(eventID),
			xslog.Source(mark.Source),
			xslog.Error(mark.Err),
		)
	}

	return Outcome{
		Status: status,
		Source: mark.Source,
		Err:    procErr,
		Mark:   mark,
	}, nil
}

// reserve claims eventID with a processing record. Stores without a
// conditional write fall back to an optimistic mark, which leaves a window
// where two concurrent deliveries can both pass.
func (g *Guard) reserve(ctx context.Context, eventID string, metadata map[string]string) (bool, string, error) {
	now := g.now()
	rec := storage.IdempotencyRecord{
		EventID:     eventID,
		Status:      storage.StatusProcessing,
		ProcessedAt: now,
		ExpiresAt:   now.Add(g.processingTTL),
		Metadata:    maps.Clone(metadata),
	}

	if s, ok := g.store.(sourcedStore); ok {
		return s.PutIfAbsentSourced(ctx, rec)
	}
	if cp, ok := g.store.(storage.ConditionalPutter); ok {
		reserved, err := cp.PutIfAbsent(ctx, rec)
		return reserved, g.store.Source(), err
	}

	err := g.store.Put(ctx, rec)
	if errors.Is(err, storage.ErrRecordFinal) {
		return false, g.store.Source(), nil
	}
	return err == nil, g.store.Source(), err
}

func (g *Guard) get(ctx context.Context, eventID string) (storage.IdempotencyRecord, string, error) {
	if s, ok := g.store.(sourcedStore); ok {
		return s.GetSourced(ctx, eventID)
	}
	rec, err := g.store.Get(ctx, eventID)
	return rec, g.store.Source(), err
}

func (g *Guard) put(ctx context.Context, rec storage.IdempotencyRecord) (string, error) {
	if s, ok := g.store.(sourcedStore); ok {
		return s.PutSourced(ctx, rec)
	}
	return g.store.Source(), g.store.Put(ctx, rec)
}
