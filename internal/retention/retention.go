// Package retention runs the background sweep over the pending-operation
// store: expiring stale proposals and pruning resolved rows past the
// retention window. The orchestrator never deletes operations itself;
// retention is the only place rows leave the table.
package retention

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/docuease/copilot/internal/pending"
)

// Sweeper schedules periodic expiry and pruning of pending operations.
type Sweeper struct {
	store    pending.Store
	schedule string
	keep     time.Duration
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewSweeper creates a Sweeper. schedule is a standard five-field cron
// expression; keep is how long resolved operations are retained.
func NewSweeper(store pending.Store, schedule string, keep time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sweeper{
		store:    store,
		schedule: schedule,
		keep:     keep,
		logger:   logger,
	}
}

// Start schedules the sweep and returns a stop function.
func (s *Sweeper) Start(ctx context.Context) (func(), error) {
	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling retention sweep %q: %w", s.schedule, err)
	}
	s.cron = c
	c.Start()

	s.logger.InfoContext(ctx, "retention sweeper started",
		slog.String("schedule", s.schedule),
		slog.String("keep_resolved", s.keep.String()),
	)

	return func() {
		stopCtx := c.Stop()
		<-stopCtx.Done()
		s.logger.Info("retention sweeper stopped")
	}, nil
}

// Sweep runs one expiry + prune pass. Exported so callers can force a
// pass outside the schedule.
func (s *Sweeper) Sweep(ctx context.Context) {
	if err := s.store.ExpireOld(ctx); err != nil {
		s.logger.ErrorContext(ctx, "expiring stale pending operations", "error", err)
	}
	if err := s.store.DeleteResolved(ctx, s.keep); err != nil {
		s.logger.ErrorContext(ctx, "pruning resolved pending operations", "error", err)
	}
}
