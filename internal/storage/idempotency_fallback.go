package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/garrettladley/payhook/internal/xslog"
)

var (
	_ IdempotencyStore  = (*FallbackIdempotencyStore)(nil)
	_ ConditionalPutter = (*FallbackIdempotencyStore)(nil)
)

// FallbackIdempotencyStore serves from a durable primary and degrades to an
// in-process memory store when the primary errors. While degraded, duplicate
// suppression holds only within this process; concurrent deliveries landing
// on different replicas can both run.
type FallbackIdempotencyStore struct {
	primary  IdempotencyStore
	fallback *MemoryIdempotencyStore
	logger   *slog.Logger
}

func NewFallbackIdempotencyStore(primary IdempotencyStore, fallback *MemoryIdempotencyStore, logger *slog.Logger) *FallbackIdempotencyStore {
	return &FallbackIdempotencyStore{primary: primary, fallback: fallback, logger: logger}
}

// Source reports the primary; per-operation sources are available through
// the Sourced methods.
func (f *FallbackIdempotencyStore) Source() string { return f.primary.Source() }

func (f *FallbackIdempotencyStore) Get(ctx context.Context, eventID string) (IdempotencyRecord, error) {
	rec, _, err := f.GetSourced(ctx, eventID)
	return rec, err
}

// GetSourced is Get that also reports which backend answered.
func (f *FallbackIdempotencyStore) GetSourced(ctx context.Context, eventID string) (IdempotencyRecord, string, error) {
	rec, err := f.primary.Get(ctx, eventID)
	switch {
	case err == nil:
		return rec, f.primary.Source(), nil
	case errors.Is(err, ErrNotFound):
		// records written while degraded live only in memory
		if rec, ferr := f.fallback.Get(ctx, eventID); ferr == nil {
			return rec, f.fallback.Source(), nil
		}
		return IdempotencyRecord{}, f.primary.Source(), ErrNotFound
	default:
		f.degraded(ctx, "get", eventID, err)
		rec, err := f.fallback.Get(ctx, eventID)
		return rec, f.fallback.Source(), err
	}
}

func (f *FallbackIdempotencyStore) Put(ctx context.Context, rec IdempotencyRecord) error {
	_, err := f.PutSourced(ctx, rec)
	return err
}

func (f *FallbackIdempotencyStore) PutSourced(ctx context.Context, rec IdempotencyRecord) (string, error) {
	err := f.primary.Put(ctx, rec)
	if err == nil || errors.Is(err, ErrRecordFinal) {
		return f.primary.Source(), err
	}
	f.degraded(ctx, "put", rec.EventID, err)
	return f.fallback.Source(), f.fallback.Put(ctx, rec)
}

func (f *FallbackIdempotencyStore) PutIfAbsent(ctx context.Context, rec IdempotencyRecord) (bool, error) {
	ok, _, err := f.PutIfAbsentSourced(ctx, rec)
	return ok, err
}

func (f *FallbackIdempotencyStore) PutIfAbsentSourced(ctx context.Context, rec IdempotencyRecord) (bool, string, error) {
	if cp, ok := f.primary.(ConditionalPutter); ok {
		written, err := cp.PutIfAbsent(ctx, rec)
		if err == nil {
			return written, f.primary.Source(), nil
		}
		f.degraded(ctx, "put_if_absent", rec.EventID, err)
	}
	written, err := f.fallback.PutIfAbsent(ctx, rec)
	return written, f.fallback.Source(), err
}

func (f *FallbackIdempotencyStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	n, _ := f.fallback.DeleteExpired(ctx, before)
	sweeper, ok := f.primary.(ExpirySweeper)
	if !ok {
		return n, nil
	}
	m, err := sweeper.DeleteExpired(ctx, before)
	return n + m, err
}

func (f *FallbackIdempotencyStore) Ping(ctx context.Context) error {
	return f.primary.Ping(ctx)
}

// ActiveSource names the backend new writes would land on right now.
func (f *FallbackIdempotencyStore) ActiveSource(ctx context.Context) string {
	if err := f.primary.Ping(ctx); err != nil {
		return f.fallback.Source()
	}
	return f.primary.Source()
}

func (f *FallbackIdempotencyStore) Close() error {
	return errors.Join(f.primary.Close(), f.fallback.Close())
}

func (f *FallbackIdempotencyStore) degraded(ctx context.Context, op, eventID string, err error) {
	f.logger.WarnContext(ctx, "idempotency store unavailable, using memory fallback",
		slog.String("op", op),
		xslog.Backend(f.primary.Source()),
		xslog.EventID(eventID),
		xslog.Error(err),
	)
}
