package idempotency

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/garrettladley/payhook/internal/storage"
)

func TestSweeperSweepOnce(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	store := storage.NewMemoryIdempotencyStore()
	past := time.Now().Add(-time.Hour)
	_ = store.Put(ctx, storage.IdempotencyRecord{
		EventID:     "evt_old",
		Status:      storage.StatusCompleted,
		ProcessedAt: past,
		ExpiresAt:   past.Add(time.Minute),
	})

	s := NewSweeper(store, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if got := s.SweepOnce(ctx); got != 1 {
		t.Errorf("SweepOnce() = %d, want 1", got)
	}
	if got := store.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
}
