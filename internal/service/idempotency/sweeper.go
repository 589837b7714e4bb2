package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/garrettladley/payhook/internal/storage"
	"github.com/garrettladley/payhook/internal/xslog"
)

// Sweeper periodically deletes expired records from stores that do not
// expire keys on their own.
type Sweeper struct {
	store    storage.ExpirySweeper
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(store storage.ExpirySweeper, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{store: store, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled. A non-positive interval disables it.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) int64 {
	n, err := s.store.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.logger.WarnContext(ctx, "idempotency sweep failed", xslog.Error(err))
		return n
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "swept expired idempotency records", slog.Int64("deleted", n))
	}
	return n
}
